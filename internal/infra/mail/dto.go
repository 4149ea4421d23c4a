package mail

import (
	"go.uber.org/zap"

	"github.com/xavierca1/ligue-crm/internal/entity"
)

type ClosedDealEmailData struct {
	OwnerName string
	LeadName  string
	Company   string
	Value     string
}

type EmailSender struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string

	Users  entity.UserRepositoryInterface
	dialer messageSender
	logger *zap.Logger
}
