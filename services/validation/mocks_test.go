package validation

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/customeros/mailprobe/internal/models"
)

type MockProber struct {
	mock.Mock
}

func (m *MockProber) Probe(ctx context.Context, req models.ProbeRequest) *models.ProbeResult {
	args := m.Called(ctx, req)
	return args.Get(0).(*models.ProbeResult)
}

func (m *MockProber) CatchAll(ctx context.Context, domain string, mx []string) (bool, error) {
	args := m.Called(ctx, domain, mx)
	return args.Bool(0), args.Error(1)
}

type MockBreaker struct {
	mock.Mock
}

func (m *MockBreaker) IsOpen(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *MockBreaker) RecordFailure(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockBreaker) RecordSuccess(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockBreaker) RecordFallback(ctx context.Context) {
	m.Called(ctx)
}
