package kommo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/ligue-crm/internal/entity"
	"github.com/xavierca1/ligue-crm/internal/infra/queue"
)

type recorded struct {
	method, path, query string
	body                []byte
}

func fakeKommo(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*httptest.Server, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, recorded{r.Method, r.URL.Path, r.URL.RawQuery, body})
		mu.Unlock()

		if h, ok := routes[r.Method+" "+r.URL.Path]; ok {
			h(w)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func writeJSON(status int, v string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, v)
	}
}

var stages = map[entity.Status]int{
	entity.StatusOpen:   100,
	entity.StatusClosed: 142,
}

func TestHandleStatusChangedPatchesExistingLead(t *testing.T) {
	srv, calls := fakeKommo(t, map[string]func(http.ResponseWriter){
		"GET /leads":      writeJSON(http.StatusOK, `{"_embedded":{"leads":[{"id":77}]}}`),
		"PATCH /leads/77": writeJSON(http.StatusOK, `{}`),
	})
	client := NewClient("token", srv.URL, stages, nil)
	v := 3000.0
	lead := &entity.Lead{ID: "L1", Name: "Alice", Status: entity.StatusClosed, Value: &v}

	err := client.HandleLeadEvent(context.Background(), queue.LeadEvent{Type: queue.EventLeadStatusChanged, LeadID: "L1", Lead: lead})
	require.NoError(t, err)

	require.Len(t, *calls, 2)
	assert.Equal(t, "query=crm%3AL1", (*calls)[0].query)

	var patch map[string]int
	require.NoError(t, json.Unmarshal((*calls)[1].body, &patch))
	assert.Equal(t, 142, patch["status_id"])
	assert.Equal(t, 3000, patch["price"])
}

func TestHandleStatusChangedCreatesMissingLead(t *testing.T) {
	srv, calls := fakeKommo(t, map[string]func(http.ResponseWriter){
		"GET /leads":     writeJSON(http.StatusNoContent, ``),
		"GET /contacts":  writeJSON(http.StatusNoContent, ``),
		"POST /contacts": writeJSON(http.StatusOK, `{"_embedded":{"contacts":[{"id":9}]}}`),
		"POST /leads":    writeJSON(http.StatusOK, `{"_embedded":{"leads":[{"id":501}]}}`),
	})
	client := NewClient("token", srv.URL, stages, nil)
	lead := &entity.Lead{ID: "L2", Name: "Bob", Company: "Bobco", Email: "bob@bobco.io", Status: entity.StatusOpen}

	err := client.HandleLeadEvent(context.Background(), queue.LeadEvent{Type: queue.EventLeadUpdated, LeadID: "L2", Lead: lead})
	require.NoError(t, err)

	require.Len(t, *calls, 4)
	last := (*calls)[3]
	assert.Equal(t, "POST", last.method)

	var created []map[string]interface{}
	require.NoError(t, json.Unmarshal(last.body, &created))
	assert.Equal(t, "Bob - Bobco", created[0]["name"])
	assert.Equal(t, float64(100), created[0]["status_id"])
}

func TestCreateLeadReportsKommoErrors(t *testing.T) {
	srv, _ := fakeKommo(t, map[string]func(http.ResponseWriter){
		"GET /contacts": writeJSON(http.StatusOK, `{"_embedded":{"contacts":[{"id":9}]}}`),
		"POST /leads":   writeJSON(http.StatusBadRequest, `{"title":"Bad Request"}`),
	})
	client := NewClient("token", srv.URL, stages, nil)

	_, err := client.CreateLead(context.Background(), CreateLeadInput{ExternalID: "L3", CustomerName: "Carol", Email: "c@c.io"})

	assert.ErrorContains(t, err, "400")
}

func TestHandleLeadEventWithoutToken(t *testing.T) {
	client := NewClient("", "http://unused", stages, nil)

	err := client.HandleLeadEvent(context.Background(), queue.LeadEvent{Type: queue.EventLeadCreated, Lead: &entity.Lead{}})

	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestHandleDeletedIsNoop(t *testing.T) {
	srv, calls := fakeKommo(t, nil)
	client := NewClient("token", srv.URL, stages, nil)

	err := client.HandleLeadEvent(context.Background(), queue.LeadEvent{Type: queue.EventLeadDeleted, LeadID: "L1"})

	assert.NoError(t, err)
	assert.Empty(t, *calls)
}
