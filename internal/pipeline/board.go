package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/xavierca1/ligue-crm/internal/entity"
)

// Board wires the cache, filter, grouping and coordinator together. Columns
// are always computed from the filtered cache and drops always go through
// the coordinator.
type Board struct {
	cache       *Cache
	store       LeadStore
	coordinator *Coordinator
	logger      *zap.Logger
}

func NewBoard(cache *Cache, store LeadStore, coordinator *Coordinator, logger *zap.Logger) *Board {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Board{cache: cache, store: store, coordinator: coordinator, logger: logger}
}

// Refresh reloads the cache from the store.
func (b *Board) Refresh(ctx context.Context) error {
	if err := b.cache.Refresh(ctx, b.store); err != nil {
		return err
	}
	b.logger.Debug("pipeline cache refreshed", zap.Int("leads", b.cache.Len()))
	return nil
}

func (b *Board) Leads(filter FilterState) []*entity.Lead {
	return Apply(b.cache.Snapshot(), filter)
}

func (b *Board) Columns(filter FilterState) Columns {
	return GroupByStatus(b.Leads(filter))
}

func (b *Board) Lead(id string) (*entity.Lead, bool) {
	return b.cache.Get(id)
}

func (b *Board) DragStart(leadID string) bool {
	return b.coordinator.DragStart(leadID)
}

func (b *Board) Drop(ctx context.Context, leadID, targetID string) *Move {
	return b.coordinator.OnDrop(ctx, leadID, targetID)
}

func (b *Board) Phase() Phase {
	return b.coordinator.Phase()
}

// LeadForm is the add/edit form buffer.
type LeadForm struct {
	Name       string   `json:"name"`
	Company    string   `json:"company"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	Status     string   `json:"status"`
	Source     string   `json:"source"`
	AssignedTo string   `json:"assigned_to"`
	Value      *float64 `json:"value"`
	Notes      string   `json:"notes"`
	Tags       []string `json:"tags"`
}

// FormFromLead fills a form buffer from an existing lead.
func FormFromLead(l *entity.Lead) LeadForm {
	f := LeadForm{
		Name:       l.Name,
		Company:    l.Company,
		Email:      l.Email,
		Phone:      l.Phone,
		Status:     string(l.Status),
		Source:     l.Source,
		AssignedTo: l.AssignedTo,
		Notes:      l.Notes,
		Tags:       append([]string(nil), l.Tags...),
	}
	if l.Value != nil {
		v := *l.Value
		f.Value = &v
	}
	return f
}

// ViewState is the per-viewer UI state of the pipeline page.
type ViewState struct {
	Filter     FilterState  `json:"filter"`
	AddOpen    bool         `json:"add_open"`
	EditOpen   bool         `json:"edit_open"`
	ActiveLead *entity.Lead `json:"active_lead,omitempty"`
	AddForm    LeadForm     `json:"add_form"`
	EditForm   LeadForm     `json:"edit_form"`
}

func NewViewState() *ViewState {
	return &ViewState{
		Filter:  DefaultFilter(),
		AddForm: LeadForm{Status: string(entity.DefaultStatus)},
	}
}

func (v *ViewState) SetFilter(f FilterState) {
	v.Filter = f
}

func (v *ViewState) ResetFilter() {
	v.Filter = DefaultFilter()
}

// OpenAdd opens the add dialog with an empty form preset to status.
func (v *ViewState) OpenAdd(status entity.Status) {
	v.EditOpen = false
	v.AddOpen = true
	v.AddForm = LeadForm{Status: string(entity.NormalizeStatus(string(status)))}
}

func (v *ViewState) OpenEdit(lead *entity.Lead) {
	if lead == nil {
		return
	}
	v.AddOpen = false
	v.EditOpen = true
	v.ActiveLead = lead.Clone()
	v.EditForm = FormFromLead(lead)
}

func (v *ViewState) CloseDialogs() {
	v.AddOpen = false
	v.EditOpen = false
	v.ActiveLead = nil
	v.AddForm = LeadForm{Status: string(entity.DefaultStatus)}
	v.EditForm = LeadForm{}
}

// Render computes the columns the viewer sees.
func (v *ViewState) Render(b *Board) Columns {
	return b.Columns(v.Filter)
}
