package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/leads/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/leads/{id}", "404"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/leads/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/leads/def", nil))

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/leads/{id}", "404"))
	assert.Equal(t, 2.0, after-before)
}

func TestRecordMoveAndMutation(t *testing.T) {
	moves := testutil.ToFloat64(pipelineMoves.WithLabelValues("rolled_back"))
	RecordMove("rolled_back")
	assert.Equal(t, 1.0, testutil.ToFloat64(pipelineMoves.WithLabelValues("rolled_back"))-moves)

	failed := testutil.ToFloat64(leadMutations.WithLabelValues("create", "error"))
	RecordLeadMutation("create", errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(leadMutations.WithLabelValues("create", "error"))-failed)
}
