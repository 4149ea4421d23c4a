package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/ligue-crm/internal/infra/queue"
)

type DeleteLeadUseCase struct {
	Repo     LeadRepository
	Pipeline PipelineRefresher
	Events   LeadEventPublisher
	logger   *zap.Logger
}

func NewDeleteLeadUseCase(
	repo LeadRepository,
	pipeline PipelineRefresher,
	events LeadEventPublisher,
	logger *zap.Logger,
) *DeleteLeadUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeleteLeadUseCase{Repo: repo, Pipeline: pipeline, Events: events, logger: logger}
}

func (uc *DeleteLeadUseCase) Execute(ctx context.Context, id string) error {
	if err := uc.Repo.Delete(ctx, id); err != nil {
		return mapRepoError(err)
	}

	if uc.Events != nil {
		event := queue.LeadEvent{Type: queue.EventLeadDeleted, LeadID: id, OccurredAt: time.Now()}
		if err := uc.Events.PublishLeadEvent(ctx, event); err != nil {
			uc.logger.Warn("lead event not published", zap.String("type", event.Type), zap.String("lead_id", id), zap.Error(err))
		}
	}

	uc.logger.Info("lead deleted", zap.String("lead_id", id))
	refreshPipeline(ctx, uc.Pipeline, uc.logger)
	return nil
}
