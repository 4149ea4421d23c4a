package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/xavierca1/ligue-crm/internal/entity"
	"github.com/xavierca1/ligue-crm/internal/infra/queue"
)

var closedDealTemplate = template.Must(template.New("closed_deal").Parse(`<p>Olá {{.OwnerName}},</p>
<p>O lead <strong>{{.LeadName}}</strong>{{if .Company}} ({{.Company}}){{end}} foi marcado como fechado.</p>
{{if .Value}}<p>Valor estimado: <strong>{{.Value}}</strong></p>{{end}}
<p>Parabéns pela venda!</p>
`))

type messageSender interface {
	DialAndSend(m ...*gomail.Message) error
}

func NewEmailSender(host string, port int, user, password, from string, users entity.UserRepositoryInterface, logger *zap.Logger) *EmailSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailSender{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		From:     from,
		Users:    users,
		dialer:   gomail.NewDialer(host, port, user, password),
		logger:   logger,
	}
}

func (s *EmailSender) Name() string { return "mail" }

// HandleLeadEvent emails the owner when one of their leads is closed.
func (s *EmailSender) HandleLeadEvent(ctx context.Context, event queue.LeadEvent) error {
	if event.Type != queue.EventLeadStatusChanged || event.To != entity.StatusClosed {
		return nil
	}
	if event.Lead == nil || event.Lead.AssignedTo == "" {
		return nil
	}

	owner, err := s.Users.FindByID(ctx, event.Lead.AssignedTo)
	if errors.Is(err, entity.ErrUserNotFound) {
		s.logger.Info("closed lead has an unknown owner, skipping email",
			zap.String("lead_id", event.LeadID),
			zap.String("owner", event.Lead.AssignedTo))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load owner: %w", err)
	}

	return s.SendClosedDeal(owner, event.Lead)
}

func (s *EmailSender) SendClosedDeal(owner *entity.User, lead *entity.Lead) error {
	body, err := renderClosedDeal(owner, lead)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", owner.Email)
	m.SetHeader("Subject", fmt.Sprintf("Negócio fechado: %s", lead.Name))
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send closed deal email: %w", err)
	}

	s.logger.Info("closed deal email sent", zap.String("lead_id", lead.ID), zap.String("to", owner.Email))
	return nil
}

func renderClosedDeal(owner *entity.User, lead *entity.Lead) (string, error) {
	data := ClosedDealEmailData{
		OwnerName: owner.Name,
		LeadName:  lead.Name,
		Company:   lead.Company,
	}
	if lead.Value != nil {
		data.Value = fmt.Sprintf("R$ %.2f", *lead.Value)
	}

	var body bytes.Buffer
	if err := closedDealTemplate.Execute(&body, data); err != nil {
		return "", fmt.Errorf("render closed deal email: %w", err)
	}
	return body.String(), nil
}
