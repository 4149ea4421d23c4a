package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xavierca1/ligue-crm/internal/entity"
	"github.com/xavierca1/ligue-crm/internal/infra/http/middleware"
	"github.com/xavierca1/ligue-crm/internal/pipeline"
	"github.com/xavierca1/ligue-crm/internal/usecase"
)

// CurrentUserHeader carries the signed-in user id set by the auth proxy.
const CurrentUserHeader = "X-User-ID"

type LeadCreator interface {
	Execute(ctx context.Context, input usecase.CreateLeadInput) (*usecase.LeadOutput, error)
}

type LeadUpdater interface {
	Execute(ctx context.Context, input usecase.UpdateLeadInput) (*usecase.LeadOutput, error)
}

type LeadDeleter interface {
	Execute(ctx context.Context, id string) error
}

// LeadReader serves reads from the pipeline cache.
type LeadReader interface {
	Leads(filter pipeline.FilterState) []*entity.Lead
	Lead(id string) (*entity.Lead, bool)
}

type LeadHandler struct {
	create      LeadCreator
	update      LeadUpdater
	remove      LeadDeleter
	leads       LeadReader
	rateLimiter *RateLimiter
	logger      *zap.Logger
}

func NewLeadHandler(create LeadCreator, update LeadUpdater, remove LeadDeleter, leads LeadReader, rateLimiter *RateLimiter, logger *zap.Logger) *LeadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadHandler{
		create:      create,
		update:      update,
		remove:      remove,
		leads:       leads,
		rateLimiter: rateLimiter,
		logger:      logger,
	}
}

type LeadListResponse struct {
	Leads  []*entity.Lead       `json:"leads"`
	Count  int                  `json:"count"`
	Filter pipeline.FilterState `json:"filter"`
}

func (h *LeadHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

func (h *LeadHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	leads := h.leads.Leads(filter)
	if leads == nil {
		leads = []*entity.Lead{}
	}
	writeJSON(w, http.StatusOK, LeadListResponse{Leads: leads, Count: len(leads), Filter: filter})
}

func (h *LeadHandler) Get(w http.ResponseWriter, r *http.Request) {
	lead, ok := h.leads.Lead(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, usecase.CodeLeadNotFound, "lead not found")
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (h *LeadHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.rateLimiter != nil && !h.rateLimiter.Allow(getClientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.")
		return
	}

	var input usecase.CreateLeadInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON")
		return
	}
	input.CurrentUserID = r.Header.Get(CurrentUserHeader)

	out, err := h.create.Execute(r.Context(), input)
	middleware.RecordLeadMutation("create", err)
	if err != nil {
		h.logFailure("create lead failed", err)
		writeUseCaseError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *LeadHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch entity.LeadPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON")
		return
	}

	out, err := h.update.Execute(r.Context(), usecase.UpdateLeadInput{ID: chi.URLParam(r, "id"), Patch: patch})
	middleware.RecordLeadMutation("update", err)
	if err != nil {
		h.logFailure("update lead failed", err)
		writeUseCaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *LeadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.remove.Execute(r.Context(), chi.URLParam(r, "id"))
	middleware.RecordLeadMutation("delete", err)
	if err != nil {
		h.logFailure("delete lead failed", err)
		writeUseCaseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LeadHandler) logFailure(msg string, err error) {
	var te *usecase.TechnicalError
	if errors.As(err, &te) {
		h.logger.Error(msg, zap.String("code", te.Code), zap.Error(te.Err))
	}
}

// filterFromQuery reads ?q=&status=&owner=&date= into a FilterState.
// Missing selectors mean "all".
func filterFromQuery(r *http.Request) pipeline.FilterState {
	q := r.URL.Query()
	f := pipeline.DefaultFilter()
	f.Query = q.Get("q")
	f.Date = q.Get("date")
	if s := q.Get("status"); s != "" {
		f.Status = s
	}
	if o := q.Get("owner"); o != "" {
		f.Owner = o
	}
	return f
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// primeiro IP é o cliente original
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
	now      func() time.Time
}

type visitor struct {
	count     int
	lastReset time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	now := rl.now()

	if !exists {
		rl.visitors[ip] = &visitor{count: 1, lastReset: now}
		return true
	}

	if now.Sub(v.lastReset) > rl.window {
		v.count = 1
		v.lastReset = now
		return true
	}

	v.count++
	return v.count <= rl.limit
}

// Cleanup drops stale visitors every 10 minutes until ctx is done.
func (rl *RateLimiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.prune()
		}
	}
}

func (rl *RateLimiter) prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip, v := range rl.visitors {
		if now.Sub(v.lastReset) > rl.window*2 {
			delete(rl.visitors, ip)
		}
	}
}
