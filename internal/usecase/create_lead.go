package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/ligue-crm/internal/entity"
	"github.com/xavierca1/ligue-crm/internal/infra/queue"
)

type CreateLeadUseCase struct {
	Repo     LeadRepository
	Pipeline PipelineRefresher
	Events   LeadEventPublisher
	logger   *zap.Logger
}

func NewCreateLeadUseCase(
	repo LeadRepository,
	pipeline PipelineRefresher,
	events LeadEventPublisher,
	logger *zap.Logger,
) *CreateLeadUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreateLeadUseCase{
		Repo:     repo,
		Pipeline: pipeline,
		Events:   events,
		logger:   logger,
	}
}

// Execute validates and stores a new lead. The lead is only kept if its
// lead.created event reaches the broker, so the CRM mirror never misses one.
func (uc *CreateLeadUseCase) Execute(ctx context.Context, input CreateLeadInput) (*LeadOutput, error) {
	if errs := ValidateCreateLeadInput(input); len(errs) > 0 {
		return nil, validationDomainError(errs)
	}

	lead, err := entity.NewLead(
		strings.TrimSpace(input.Name),
		strings.TrimSpace(input.Company),
		strings.TrimSpace(input.Email),
		entity.Status(input.Status),
	)
	if err != nil {
		return nil, &DomainError{Code: CodeValidation, Message: err.Error()}
	}

	lead.Phone = strings.TrimSpace(input.Phone)
	lead.Source = strings.TrimSpace(input.Source)
	lead.AssignedTo = input.AssignedTo
	if lead.AssignedTo == "" {
		lead.AssignedTo = input.CurrentUserID
	}
	lead.Value = input.Value
	lead.Notes = input.Notes
	if input.Tags != nil {
		lead.Tags = input.Tags
	}

	txn := NewTransaction(uc.logger)

	txn.AddOperation("create_lead", func(ctx context.Context) error {
		return uc.Repo.Create(ctx, lead)
	})
	txn.AddCompensation("delete_lead", func(ctx context.Context) error {
		return uc.Repo.Delete(ctx, lead.ID)
	})

	if uc.Events != nil {
		txn.AddOperation("publish_lead_created", func(ctx context.Context) error {
			return uc.Events.PublishLeadEvent(ctx, queue.LeadEvent{
				Type:       queue.EventLeadCreated,
				LeadID:     lead.ID,
				Lead:       lead,
				To:         lead.Status,
				OccurredAt: time.Now(),
			})
		})
	}

	if err := txn.Execute(ctx); err != nil {
		if errors.Is(err, entity.ErrEmailAlreadyExists) {
			return nil, &DomainError{Code: CodeEmailConflict, Message: "a lead with this email already exists"}
		}
		if errors.Is(err, entity.ErrInvalidLead) {
			return nil, &DomainError{Code: CodeValidation, Message: err.Error()}
		}
		return nil, &TechnicalError{
			Code:    CodeDatabase,
			Message: "failed to persist lead: " + err.Error(),
			Err:     err,
		}
	}

	uc.logger.Info("lead created", zap.String("lead_id", lead.ID), zap.String("status", string(lead.Status)))
	refreshPipeline(ctx, uc.Pipeline, uc.logger)

	return &LeadOutput{Lead: lead, Msg: "Lead created"}, nil
}

// refreshPipeline reloads the board after a mutation. A failure only delays
// the board until the next periodic refresh.
func refreshPipeline(ctx context.Context, p PipelineRefresher, logger *zap.Logger) {
	if p == nil {
		return
	}
	if err := p.Refresh(ctx); err != nil {
		logger.Warn("pipeline refresh after mutation failed", zap.Error(err))
	}
}
