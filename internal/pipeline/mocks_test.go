package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/goleak"

	"github.com/xavierca1/ligue-crm/internal/entity"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type MockLeadStore struct {
	mock.Mock
}

func (m *MockLeadStore) List(ctx context.Context, criteria entity.ListCriteria) ([]*entity.Lead, error) {
	args := m.Called(ctx, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Lead), args.Error(1)
}

func (m *MockLeadStore) Update(ctx context.Context, id string, patch entity.LeadPatch) (*entity.Lead, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Lead), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishStatusChanged(ctx context.Context, change StatusChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func statusPatch(s entity.Status) entity.LeadPatch {
	return entity.LeadPatch{Status: &s}
}

var baseDay = time.Date(2026, 3, 10, 9, 30, 0, 0, time.Local)

func newLead(id, name string, status entity.Status) *entity.Lead {
	return &entity.Lead{
		ID:        id,
		Name:      name,
		Company:   name + " Inc",
		Email:     id + "@example.com",
		Status:    status,
		Tags:      []string{},
		CreatedAt: baseDay,
		UpdatedAt: baseDay,
	}
}

func ids(leads []*entity.Lead) []string {
	out := make([]string, 0, len(leads))
	for _, l := range leads {
		out = append(out, l.ID)
	}
	return out
}
