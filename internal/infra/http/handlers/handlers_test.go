package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/ligue-crm/internal/entity"
	"github.com/xavierca1/ligue-crm/internal/pipeline"
	"github.com/xavierca1/ligue-crm/internal/usecase"
)

type MockCreateLead struct{ mock.Mock }

func (m *MockCreateLead) Execute(ctx context.Context, input usecase.CreateLeadInput) (*usecase.LeadOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.LeadOutput), args.Error(1)
}

type MockUpdateLead struct{ mock.Mock }

func (m *MockUpdateLead) Execute(ctx context.Context, input usecase.UpdateLeadInput) (*usecase.LeadOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.LeadOutput), args.Error(1)
}

type MockDeleteLead struct{ mock.Mock }

func (m *MockDeleteLead) Execute(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// memoryStore is a LeadStore whose Update can be made to fail.
type memoryStore struct {
	mu        sync.Mutex
	leads     map[string]*entity.Lead
	order     []string
	updateErr error
}

func newMemoryStore(leads ...*entity.Lead) *memoryStore {
	s := &memoryStore{leads: map[string]*entity.Lead{}}
	for _, l := range leads {
		s.leads[l.ID] = l.Clone()
		s.order = append(s.order, l.ID)
	}
	return s
}

func (s *memoryStore) List(ctx context.Context, criteria entity.ListCriteria) ([]*entity.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.Lead, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.leads[id].Clone())
	}
	return out, nil
}

func (s *memoryStore) Update(ctx context.Context, id string, patch entity.LeadPatch) (*entity.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	lead, ok := s.leads[id]
	if !ok {
		return nil, entity.ErrLeadNotFound
	}
	if patch.Status != nil {
		lead.Status = *patch.Status
	}
	return lead.Clone(), nil
}

func testLead(id, name string, status entity.Status) *entity.Lead {
	return &entity.Lead{ID: id, Name: name, Email: id + "@example.com", Status: status, Tags: []string{}}
}

type fixture struct {
	router *chi.Mux
	board  *pipeline.Board
	coord  *pipeline.Coordinator
	store  *memoryStore
	create *MockCreateLead
	update *MockUpdateLead
	remove *MockDeleteLead
}

func newFixture(t *testing.T, leads ...*entity.Lead) *fixture {
	t.Helper()
	store := newMemoryStore(leads...)
	cache := pipeline.NewCache()
	coord := pipeline.NewCoordinator(cache, store, pipeline.WithTimeout(time.Second))
	board := pipeline.NewBoard(cache, store, coord, nil)
	require.NoError(t, board.Refresh(context.Background()))

	f := &fixture{
		board:  board,
		coord:  coord,
		store:  store,
		create: new(MockCreateLead),
		update: new(MockUpdateLead),
		remove: new(MockDeleteLead),
	}
	leadHandler := NewLeadHandler(f.create, f.update, f.remove, board, NewRateLimiter(2, time.Minute), nil)
	pipelineHandler := NewPipelineHandler(board, time.Second)

	r := chi.NewRouter()
	r.Route("/leads", leadHandler.Routes)
	r.Route("/pipeline", pipelineHandler.Routes)
	f.router = r
	t.Cleanup(coord.Wait)
	return f
}

func (f *fixture) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestListLeadsAppliesQueryFilter(t *testing.T) {
	f := newFixture(t,
		testLead("L1", "Alice", entity.StatusOpen),
		testLead("L2", "Bob", entity.StatusClosed),
	)

	rec := f.do(http.MethodGet, "/leads?q=ali", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[LeadListResponse](t, rec)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "L1", resp.Leads[0].ID)
	assert.Equal(t, pipeline.All, resp.Filter.Status)
}

func TestGetLeadNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/leads/missing", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, usecase.CodeLeadNotFound, decode[ErrorResponse](t, rec).Error)
}

func TestCreateLeadPassesCurrentUser(t *testing.T) {
	f := newFixture(t)
	created := testLead("L9", "Carol", entity.StatusOpen)
	f.create.On("Execute", mock.Anything, mock.MatchedBy(func(in usecase.CreateLeadInput) bool {
		return in.Name == "Carol" && in.CurrentUserID == "u1"
	})).Return(&usecase.LeadOutput{Lead: created}, nil)

	rec := f.do(http.MethodPost, "/leads", `{"name":"Carol","email":"c@c.io"}`, CurrentUserHeader, "u1")

	assert.Equal(t, http.StatusCreated, rec.Code)
	f.create.AssertExpectations(t)
}

func TestCreateLeadMapsErrors(t *testing.T) {
	f := newFixture(t)
	f.create.On("Execute", mock.Anything, mock.Anything).
		Return(nil, &usecase.DomainError{Code: usecase.CodeEmailConflict, Message: "dup"}).Once()

	rec := f.do(http.MethodPost, "/leads", `{"name":"Carol"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, usecase.CodeEmailConflict, decode[ErrorResponse](t, rec).Error)

	rec = f.do(http.MethodPost, "/leads", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateLeadIsRateLimited(t *testing.T) {
	f := newFixture(t)
	f.create.On("Execute", mock.Anything, mock.Anything).
		Return(nil, &usecase.TechnicalError{Code: usecase.CodeDatabase, Message: "down", Err: errors.New("down")})

	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodPost, "/leads", `{}`, "X-Forwarded-For", "1.2.3.4").Code)
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodPost, "/leads", `{}`, "X-Forwarded-For", "1.2.3.4").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/leads", `{}`, "X-Forwarded-For", "1.2.3.4, 10.0.0.1").Code)
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodPost, "/leads", `{}`, "X-Forwarded-For", "5.6.7.8").Code)
}

func TestUpdateAndDeleteLead(t *testing.T) {
	f := newFixture(t)
	f.update.On("Execute", mock.Anything, mock.MatchedBy(func(in usecase.UpdateLeadInput) bool {
		return in.ID == "L1" && in.Patch.Name != nil && *in.Patch.Name == "Ann"
	})).Return(&usecase.LeadOutput{Lead: testLead("L1", "Ann", entity.StatusOpen)}, nil)
	f.remove.On("Execute", mock.Anything, "L1").Return(nil)
	f.remove.On("Execute", mock.Anything, "L2").
		Return(&usecase.DomainError{Code: usecase.CodeLeadNotFound, Message: "lead not found"})

	assert.Equal(t, http.StatusOK, f.do(http.MethodPatch, "/leads/L1", `{"name":"Ann"}`).Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/leads/L1", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/leads/L2", "").Code)
}

func TestBoardReturnsAllColumnsInOrder(t *testing.T) {
	value := 500.0
	closed := testLead("L2", "Bob", entity.StatusClosed)
	closed.Value = &value
	f := newFixture(t, testLead("L1", "Alice", entity.StatusOpen), closed)

	rec := f.do(http.MethodGet, "/pipeline", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[BoardResponse](t, rec)
	require.Len(t, resp.Columns, len(entity.Statuses))
	for i, s := range entity.Statuses {
		assert.Equal(t, s, resp.Columns[i].Status)
	}
	assert.Equal(t, 1, resp.Columns[0].Count)
	assert.Empty(t, resp.Columns[1].Leads)
	assert.Equal(t, 500.0, resp.Columns[3].Value)
}

func TestDragUnknownLead(t *testing.T) {
	f := newFixture(t, testLead("L1", "Alice", entity.StatusOpen))

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/pipeline/drag", `{"lead_id":"L1"}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/pipeline/drag", `{"lead_id":"nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/pipeline/drag", `{}`).Code)
}

func TestDropIsAcceptedOptimistically(t *testing.T) {
	f := newFixture(t, testLead("L1", "Alice", entity.StatusOpen), testLead("L2", "Bob", entity.StatusProposal))

	rec := f.do(http.MethodPost, "/pipeline/drop", `{"lead_id":"L1","target_id":"L2"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[DropResponse](t, rec)
	assert.Equal(t, entity.StatusProposal, resp.Status)
	assert.Equal(t, entity.StatusOpen, resp.From)

	lead, ok := f.board.Lead("L1")
	require.True(t, ok)
	assert.Equal(t, entity.StatusProposal, lead.Status)
}

func TestDropOnSameColumnIsNoop(t *testing.T) {
	f := newFixture(t, testLead("L1", "Alice", entity.StatusOpen))

	rec := f.do(http.MethodPost, "/pipeline/drop", `{"lead_id":"L1","target_id":"OPEN"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "noop", decode[DropResponse](t, rec).Outcome)
}

func TestDropWaitReportsRollback(t *testing.T) {
	f := newFixture(t, testLead("L1", "Alice", entity.StatusOpen))
	f.store.updateErr = errors.New("constraint violated")

	rec := f.do(http.MethodPost, "/pipeline/drop?wait=true", `{"lead_id":"L1","target_id":"CLOSED"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[DropResponse](t, rec)
	assert.Equal(t, "rolled_back", resp.Outcome)
	assert.Equal(t, entity.StatusOpen, resp.Status)

	lead, _ := f.board.Lead("L1")
	assert.Equal(t, entity.StatusOpen, lead.Status)
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type fakeConn struct{ closed bool }

func (c fakeConn) IsClosed() bool { return c.closed }

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(fakePinger{}, fakeConn{}, false).Handle(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[HealthResponse](t, rec).Status)

	rec = httptest.NewRecorder()
	NewHealthHandler(fakePinger{err: errors.New("refused")}, fakeConn{closed: true}, true).Handle(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "configured", resp.Dependencies["kommo"])
}

func TestRateLimiterWindowAndPrune(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("ip"))
	assert.False(t, rl.Allow("ip"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("ip"))

	now = now.Add(3 * time.Minute)
	rl.prune()
	assert.Empty(t, rl.visitors)
}
