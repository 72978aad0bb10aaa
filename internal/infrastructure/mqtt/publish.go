package mqtt

import (
	"encoding/json"
	"fmt"
)

// maxPayloadSize caps one published document at 1 MiB.
const maxPayloadSize = 1 << 20

// PublishJSON encodes v and publishes it at the configured QoS, waiting
// for the broker acknowledgement. Device snapshots go out retained;
// events do not.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrPublishFailed, topic, err)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes for %s", ErrPayloadTooLarge, len(payload), topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.qos(), retained, payload)
	if !token.WaitTimeout(ackTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, ackTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
