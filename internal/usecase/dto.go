package usecase

import "github.com/xavierca1/ligue-crm/internal/entity"

type CreateLeadInput struct {
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

	// CurrentUserID is the signed-in user; it becomes the owner when
	// AssignedTo is empty.
	CurrentUserID string `json:"-"`
}

type UpdateLeadInput struct {
	ID    string
	Patch entity.LeadPatch
}

type LeadOutput struct {
	Lead *entity.Lead `json:"lead"`
	Msg  string       `json:"msg,omitempty"`
}
