package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/ligue-crm/internal/entity"
	"github.com/xavierca1/ligue-crm/internal/infra/queue"
)

type UpdateLeadUseCase struct {
	Repo     LeadRepository
	Pipeline PipelineRefresher
	Events   LeadEventPublisher
	logger   *zap.Logger
}

func NewUpdateLeadUseCase(
	repo LeadRepository,
	pipeline PipelineRefresher,
	events LeadEventPublisher,
	logger *zap.Logger,
) *UpdateLeadUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UpdateLeadUseCase{Repo: repo, Pipeline: pipeline, Events: events, logger: logger}
}

// Execute applies a partial update from the lead detail form. Status changes
// made here are published like board moves.
func (uc *UpdateLeadUseCase) Execute(ctx context.Context, input UpdateLeadInput) (*LeadOutput, error) {
	if errs := ValidateLeadPatch(input.Patch); len(errs) > 0 {
		return nil, validationDomainError(errs)
	}

	patch := input.Patch
	if patch.Status != nil {
		s := entity.NormalizeStatus(string(*patch.Status))
		patch.Status = &s
	}

	before, err := uc.Repo.FindByID(ctx, input.ID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	lead, err := uc.Repo.Update(ctx, input.ID, patch)
	if err != nil {
		return nil, mapRepoError(err)
	}

	uc.publish(ctx, queue.LeadEvent{Type: queue.EventLeadUpdated, LeadID: lead.ID, Lead: lead, OccurredAt: time.Now()})
	if lead.Status != before.Status {
		uc.publish(ctx, queue.LeadEvent{
			Type:       queue.EventLeadStatusChanged,
			LeadID:     lead.ID,
			Lead:       lead,
			From:       before.Status,
			To:         lead.Status,
			OccurredAt: time.Now(),
		})
	}

	refreshPipeline(ctx, uc.Pipeline, uc.logger)
	return &LeadOutput{Lead: lead, Msg: "Lead updated"}, nil
}

func (uc *UpdateLeadUseCase) publish(ctx context.Context, event queue.LeadEvent) {
	if uc.Events == nil {
		return
	}
	if err := uc.Events.PublishLeadEvent(ctx, event); err != nil {
		uc.logger.Warn("lead event not published",
			zap.String("type", event.Type),
			zap.String("lead_id", event.LeadID),
			zap.Error(err))
	}
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, entity.ErrLeadNotFound):
		return &DomainError{Code: CodeLeadNotFound, Message: "lead not found"}
	case errors.Is(err, entity.ErrEmailAlreadyExists):
		return &DomainError{Code: CodeEmailConflict, Message: "a lead with this email already exists"}
	case errors.Is(err, entity.ErrInvalidLead):
		return &DomainError{Code: CodeValidation, Message: err.Error()}
	}
	return &TechnicalError{Code: CodeDatabase, Message: "lead store failure: " + err.Error(), Err: err}
}
