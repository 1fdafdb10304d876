package mocks

import (
	"github.com/digitalself/location-agent/pkg/location"
	"github.com/stretchr/testify/mock"
)

// LocationProvider is a mock implementation of the location.Provider interface
type LocationProvider struct {
	mock.Mock
}

func (m *LocationProvider) GetLocation() (location.Location, error) {
	args := m.Called()
	return args.Get(0).(location.Location), args.Error(1)
}

func (m *LocationProvider) Close() error {
	args := m.Called()
	return args.Error(0)
}
