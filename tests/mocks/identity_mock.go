package mocks

import (
	"github.com/digitalself/location-agent/pkg/identity"
	"github.com/stretchr/testify/mock"
)

// DeviceInfoInterface is a mock implementation of identity.DeviceInfoInterface
type DeviceInfoInterface struct {
	mock.Mock
}

func (m *DeviceInfoInterface) LoadDeviceInfo() error {
	args := m.Called()
	return args.Error(0)
}

func (m *DeviceInfoInterface) GetDeviceID() string {
	args := m.Called()
	return args.String(0)
}

func (m *DeviceInfoInterface) GetDeviceIdentity() *identity.Identity {
	args := m.Called()
	if id := args.Get(0); id != nil {
		return id.(*identity.Identity)
	}
	return nil
}
