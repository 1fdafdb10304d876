package mocks

import (
	"github.com/digitalself/location-agent/internal/models"
	"github.com/stretchr/testify/mock"
)

// DurableQueue is a mock implementation of the store.DurableQueueInterface
type DurableQueue struct {
	mock.Mock
}

func (m *DurableQueue) Append(record models.EventRecord) error {
	args := m.Called(record)
	return args.Error(0)
}

func (m *DurableQueue) DrainAll() ([]models.EventRecord, error) {
	args := m.Called()
	if records := args.Get(0); records != nil {
		return records.([]models.EventRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *DurableQueue) TruncateHead(n int) error {
	args := m.Called(n)
	return args.Error(0)
}

func (m *DurableQueue) Clear() error {
	args := m.Called()
	return args.Error(0)
}

func (m *DurableQueue) Size() int {
	args := m.Called()
	return args.Int(0)
}
