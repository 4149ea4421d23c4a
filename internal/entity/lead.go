package entity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrLeadNotFound       = errors.New("lead not found")
	ErrInvalidLead        = errors.New("invalid lead")
	ErrEmailAlreadyExists = errors.New("email already exists")
)

type Lead struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Company    string    `json:"company"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Status     Status    `json:"status"`
	Source     string    `json:"source,omitempty"`
	AssignedTo string    `json:"assigned_to,omitempty"` // User.ID, empty = unassigned
	Value      *float64  `json:"value,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewLead builds a lead with a fresh ID and timestamps. Status is normalized.
func NewLead(name, company, email string, status Status) (*Lead, error) {
	now := time.Now()
	lead := &Lead{
		ID:        uuid.New().String(),
		Name:      name,
		Company:   company,
		Email:     email,
		Status:    NormalizeStatus(string(status)),
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := lead.Validate(); err != nil {
		return nil, err
	}
	return lead, nil
}

func (l *Lead) Validate() error {
	if l.Name == "" {
		return errors.Join(ErrInvalidLead, errors.New("name is required"))
	}
	if l.Email == "" {
		return errors.Join(ErrInvalidLead, errors.New("email is required"))
	}
	if !IsValidStatus(string(l.Status)) {
		return errors.Join(ErrInvalidLead, errors.New("status is invalid"))
	}
	return nil
}

// Clone returns a copy that shares no slices or pointers with l.
func (l *Lead) Clone() *Lead {
	cp := *l
	if l.Tags != nil {
		cp.Tags = append([]string(nil), l.Tags...)
	}
	if l.Value != nil {
		v := *l.Value
		cp.Value = &v
	}
	return &cp
}

// LeadPatch carries a partial update; nil fields are left untouched.
type LeadPatch struct {
	Name       *string   `json:"name,omitempty"`
	Company    *string   `json:"company,omitempty"`
	Email      *string   `json:"email,omitempty"`
	Phone      *string   `json:"phone,omitempty"`
	Status     *Status   `json:"status,omitempty"`
	Source     *string   `json:"source,omitempty"`
	AssignedTo *string   `json:"assigned_to,omitempty"`
	Value      *float64  `json:"value,omitempty"`
	Notes      *string   `json:"notes,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
}

func (p LeadPatch) IsEmpty() bool {
	return p.Name == nil && p.Company == nil && p.Email == nil && p.Phone == nil &&
		p.Status == nil && p.Source == nil && p.AssignedTo == nil && p.Value == nil &&
		p.Notes == nil && p.Tags == nil
}

// ListCriteria is the server-side filter accepted by the store.
type ListCriteria struct {
	Status     *Status
	AssignedTo string
	Search     string
}

type LeadRepositoryInterface interface {
	List(ctx context.Context, criteria ListCriteria) ([]*Lead, error)
	FindByID(ctx context.Context, id string) (*Lead, error)
	Create(ctx context.Context, lead *Lead) error
	Update(ctx context.Context, id string, patch LeadPatch) (*Lead, error)
	Delete(ctx context.Context, id string) error
}
