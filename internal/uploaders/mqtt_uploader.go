package uploaders

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/digitalself/location-agent/internal/models"
	"github.com/digitalself/location-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// MQTTUploader delivers records by publishing them to the collector's MQTT
// topic, one flat JSON message per record.
type MQTTUploader struct {
	topic      string
	qos        int
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger
}

// NewMQTTUploader creates a new MQTTUploader publishing to the given topic.
func NewMQTTUploader(topic string, qos int, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *MQTTUploader {
	return &MQTTUploader{
		topic:      topic,
		qos:        qos,
		mqttClient: mqttClient,
		logger:     logger,
	}
}

// Deliver publishes one record and waits for broker acknowledgement or the
// context deadline, whichever comes first.
func (u *MQTTUploader) Deliver(ctx context.Context, record models.EventRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return &DeliveryError{Reason: ReasonBackendRejected, Err: err}
	}

	if !u.mqttClient.IsConnectionOpen() {
		return &DeliveryError{Reason: ReasonNetworkUnreachable, Err: errors.New("not connected to broker")}
	}

	token := u.mqttClient.Publish(u.topic, byte(u.qos), false, payload)

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			u.logger.Debug().Err(err).Str("topic", u.topic).Msg("Broker rejected location sample")
			return &DeliveryError{Reason: ReasonBackendRejected, Err: err}
		}
		return nil
	case <-ctx.Done():
		return &DeliveryError{Reason: ReasonTimeout, Err: ctx.Err()}
	}
}
