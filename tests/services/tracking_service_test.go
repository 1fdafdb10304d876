package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/digitalself/location-agent/internal/models"
	"github.com/digitalself/location-agent/internal/services"
	"github.com/digitalself/location-agent/pkg/location"
	"github.com/digitalself/location-agent/tests/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink captures submitted records for inspection.
type recordingSink struct {
	mu      sync.Mutex
	records []models.EventRecord
}

func (s *recordingSink) Submit(record models.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *recordingSink) first() models.EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[0]
}

// TestTrackingService_StartStop tests the service lifecycle guards.
func TestTrackingService_StartStop(t *testing.T) {
	mockDeviceInfo := new(mocks.DeviceInfoInterface)
	mockProvider := new(mocks.LocationProvider)
	mockProvider.On("Close").Return(nil)

	svc := services.NewTrackingService(time.Hour, mockDeviceInfo, &recordingSink{}, mockProvider, zerolog.Nop())

	err := svc.Stop()
	assert.Error(t, err)
	assert.Equal(t, "tracking service is not running", err.Error())

	require.NoError(t, svc.Start())

	err = svc.Start()
	assert.Error(t, err)
	assert.Equal(t, "tracking service is already running", err.Error())

	require.NoError(t, svc.Stop())
	mockProvider.AssertExpectations(t)
}

// TestTrackingService_SubmitsSampledFix verifies the sampling loop builds a
// record from the provider fix and the device identity.
func TestTrackingService_SubmitsSampledFix(t *testing.T) {
	accuracy := 5.0
	speed := 1.4

	mockDeviceInfo := new(mocks.DeviceInfoInterface)
	mockDeviceInfo.On("GetDeviceID").Return("test-device-id")

	mockProvider := new(mocks.LocationProvider)
	mockProvider.On("GetLocation").Return(location.Location{
		Latitude:  37.0,
		Longitude: -122.0,
		Accuracy:  &accuracy,
		Speed:     &speed,
	}, nil)
	mockProvider.On("Close").Return(nil)

	sink := &recordingSink{}
	svc := services.NewTrackingService(20*time.Millisecond, mockDeviceInfo, sink, mockProvider, zerolog.Nop())
	require.NoError(t, svc.Start())

	assert.Eventually(t, func() bool {
		return sink.count() >= 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, svc.Stop())

	record := sink.first()
	assert.Equal(t, 37.0, record.Latitude)
	assert.Equal(t, -122.0, record.Longitude)
	assert.Equal(t, "test-device-id", record.Source)
	require.NotNil(t, record.Accuracy)
	assert.Equal(t, accuracy, *record.Accuracy)
	require.NotNil(t, record.Speed)
	assert.Equal(t, speed, *record.Speed)
	assert.Nil(t, record.Altitude)
	assert.Nil(t, record.Heading)
	assert.False(t, record.Timestamp.IsZero())
}

// TestTrackingService_ProviderError verifies a failing provider submits
// nothing and does not kill the loop.
func TestTrackingService_ProviderError(t *testing.T) {
	mockDeviceInfo := new(mocks.DeviceInfoInterface)

	mockProvider := new(mocks.LocationProvider)
	mockProvider.On("GetLocation").Return(location.Location{}, errors.New("no fix"))
	mockProvider.On("Close").Return(nil)

	sink := &recordingSink{}
	svc := services.NewTrackingService(20*time.Millisecond, mockDeviceInfo, sink, mockProvider, zerolog.Nop())
	require.NoError(t, svc.Start())

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, svc.Stop())

	assert.Equal(t, 0, sink.count())
	mockProvider.AssertCalled(t, "GetLocation")
}
