package mocks

import (
	"context"

	"github.com/digitalself/location-agent/internal/models"
	"github.com/stretchr/testify/mock"
)

// Uploader is a mock implementation of the uploaders.Uploader interface
type Uploader struct {
	mock.Mock
}

func (m *Uploader) Deliver(ctx context.Context, record models.EventRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}
