package mqtt

import (
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker acknowledgment
// (for QoS > 0) up to defaultPublishTimeout.
//
// Retained messages are reserved for status topics; registry events are
// published with retained=false.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	token, err := c.publish(topic, payload, qos, retained)
	if err != nil {
		return err
	}
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishAsync hands payload to the client and returns without waiting for
// the acknowledgment. Delivery failures are logged, not returned.
func (c *Client) PublishAsync(topic string, payload []byte, qos byte, retained bool) error {
	token, err := c.publish(topic, payload, qos, retained)
	if err != nil {
		return err
	}
	go func() {
		if !token.WaitTimeout(defaultPublishTimeout) {
			c.getLogger().Warn("mqtt publish timed out", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			c.getLogger().Warn("mqtt publish failed", "topic", topic, "error", err)
		}
	}()
	return nil
}

func (c *Client) publish(topic string, payload []byte, qos byte, retained bool) (pahomqtt.Token, error) {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return nil, ErrInvalidTopic
	}
	if qos > maxQoS {
		return nil, ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return nil, fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	return c.client.Publish(topic, qos, retained, payload), nil
}
