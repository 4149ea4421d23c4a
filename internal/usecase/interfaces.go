package usecase

import (
	"context"

	"github.com/xavierca1/ligue-crm/internal/entity"
	"github.com/xavierca1/ligue-crm/internal/infra/queue"
)

type LeadRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Lead, error)
	Create(ctx context.Context, lead *entity.Lead) error
	Update(ctx context.Context, id string, patch entity.LeadPatch) (*entity.Lead, error)
	Delete(ctx context.Context, id string) error
}

// PipelineRefresher reloads the board cache after a mutation.
type PipelineRefresher interface {
	Refresh(ctx context.Context) error
}

type LeadEventPublisher interface {
	PublishLeadEvent(ctx context.Context, event queue.LeadEvent) error
}
