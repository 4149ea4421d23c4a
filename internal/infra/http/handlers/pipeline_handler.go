package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xavierca1/ligue-crm/internal/entity"
	"github.com/xavierca1/ligue-crm/internal/pipeline"
)

// PipelineBoard is the subset of *pipeline.Board the handler drives.
type PipelineBoard interface {
	Columns(filter pipeline.FilterState) pipeline.Columns
	DragStart(leadID string) bool
	Drop(ctx context.Context, leadID, targetID string) *pipeline.Move
}

type PipelineHandler struct {
	board PipelineBoard
	// maxWait bounds ?wait=true drops.
	maxWait time.Duration
}

func NewPipelineHandler(board PipelineBoard, maxWait time.Duration) *PipelineHandler {
	if maxWait <= 0 {
		maxWait = pipeline.DefaultBackendTimeout
	}
	return &PipelineHandler{board: board, maxWait: maxWait}
}

type BoardColumn struct {
	pipeline.ColumnSummary
	Leads []*entity.Lead `json:"leads"`
}

type BoardResponse struct {
	Columns []BoardColumn        `json:"columns"`
	Filter  pipeline.FilterState `json:"filter"`
}

type DragRequest struct {
	LeadID string `json:"lead_id"`
}

type DropRequest struct {
	LeadID   string `json:"lead_id"`
	TargetID string `json:"target_id"`
}

type DropResponse struct {
	LeadID  string        `json:"lead_id"`
	Outcome string        `json:"outcome"`
	From    entity.Status `json:"from,omitempty"`
	Status  entity.Status `json:"status,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func (h *PipelineHandler) Routes(r chi.Router) {
	r.Get("/", h.Board)
	r.Post("/drag", h.Drag)
	r.Post("/drop", h.Drop)
}

// Board renders the filtered columns in vocabulary order.
func (h *PipelineHandler) Board(w http.ResponseWriter, r *http.Request) {
	view := pipeline.NewViewState()
	view.SetFilter(filterFromQuery(r))

	cols := h.board.Columns(view.Filter)
	resp := BoardResponse{Filter: view.Filter, Columns: make([]BoardColumn, 0, len(entity.Statuses))}
	for _, sum := range cols.Summaries() {
		resp.Columns = append(resp.Columns, BoardColumn{ColumnSummary: sum, Leads: cols[sum.Status]})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PipelineHandler) Drag(w http.ResponseWriter, r *http.Request) {
	var req DragRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.LeadID) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "lead_id is required")
		return
	}
	if !h.board.DragStart(req.LeadID) {
		writeError(w, http.StatusNotFound, "LEAD_NOT_FOUND", "lead not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Drop applies the move optimistically and answers 202 with the pending
// outcome. With ?wait=true it waits for the store and reports the final one.
func (h *PipelineHandler) Drop(w http.ResponseWriter, r *http.Request) {
	var req DropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.LeadID) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "lead_id is required")
		return
	}

	move := h.board.Drop(r.Context(), req.LeadID, req.TargetID)
	resp := DropResponse{LeadID: move.LeadID, From: move.From, Status: move.To}
	status := http.StatusAccepted

	outcome := move.Outcome()
	if r.URL.Query().Get("wait") == "true" && outcome == pipeline.OutcomePending {
		ctx, cancel := context.WithTimeout(r.Context(), h.maxWait)
		defer cancel()

		var err error
		outcome, err = move.Wait(ctx)
		if err != nil {
			resp.Error = err.Error()
		}
		if outcome != pipeline.OutcomePending {
			status = http.StatusOK
		}
		if outcome == pipeline.OutcomeRolledBack || outcome == pipeline.OutcomeSuperseded {
			resp.Status = move.From
		}
	}

	resp.Outcome = outcome.String()
	writeJSON(w, status, resp)
}
