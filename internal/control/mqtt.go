package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/audit"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/mqtt"
)

// commandTimeout bounds one inbound MQTT command.
const commandTimeout = 10 * time.Second

// MQTTUserID is recorded as the actor of commands received over MQTT.
// The broker carries no authenticated identity, so payloads cannot name one.
const MQTTUserID = "mqtt"

// JSONPublisher is the subset of the MQTT client the mirror needs.
type JSONPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// MQTTMirror republishes device updates to MQTT: the snapshot goes to the
// device's retained state topic and the full update to the channel's event
// topic.
type MQTTMirror struct {
	client JSONPublisher
	topics mqtt.Topics
	logger Logger
}

// NewMQTTMirror creates a mirror publishing through client.
func NewMQTTMirror(client JSONPublisher) *MQTTMirror {
	return &MQTTMirror{client: client, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (m *MQTTMirror) SetLogger(logger Logger) { m.logger = logger }

// Broadcast implements Publisher. Publish failures are logged.
func (m *MQTTMirror) Broadcast(channel string, payload any) {
	if update, ok := payload.(DeviceUpdate); ok && update.Device != nil {
		topic := m.topics.DeviceState(update.Device.ID)
		if err := m.client.PublishJSON(topic, update.Device, true); err != nil {
			m.logger.Warn("failed to mirror device state", "topic", topic, "error", err)
		}
	}
	topic := m.topics.Event(channel)
	if err := m.client.PublishJSON(topic, payload, false); err != nil {
		m.logger.Warn("failed to mirror event", "topic", topic, "error", err)
	}
}

// Command is the payload accepted on a device command topic.
type Command struct {
	Action string `json:"action"`
	Params Params `json:"params,omitempty"`
}

// CommandHandler returns an MQTT handler applying commands published to
// graylogic/home/device/{id}/command through svc.
func CommandHandler(svc *Service) mqtt.MessageHandler {
	topics := mqtt.Topics{}
	return func(topic string, payload []byte) error {
		deviceID, ok := topics.DeviceIDFromTopic(topic)
		if !ok {
			return fmt.Errorf("unexpected command topic %q", topic)
		}

		var cmd Command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("decoding command for %s: %w", deviceID, err)
		}
		if cmd.Action == "" {
			return errors.New("command action is required")
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		_, err := svc.Apply(ctx, Request{
			DeviceID: deviceID,
			Intent:   Intent(cmd.Action),
			Params:   cmd.Params,
			UserID:   MQTTUserID,
			Source:   audit.SourceMQTT,
		})
		return err
	}
}
