package mqtt

import (
	"encoding/json"

	"github.com/nerrad567/gray-logic-gateways/internal/registry"
)

// asyncPublisher is the part of Client the EventPublisher needs.
type asyncPublisher interface {
	PublishAsync(topic string, payload []byte, qos byte, retained bool) error
	Topics() Topics
}

// EventPublisher publishes registry events to <prefix>/registry/<type>.
// It implements registry.Notifier: failures are logged and dropped so a
// broker outage never fails a registry operation.
type EventPublisher struct {
	client asyncPublisher
	qos    byte
	logger Logger
}

// NewEventPublisher returns a publisher sending events through client at qos.
func NewEventPublisher(client *Client, qos byte, logger Logger) *EventPublisher {
	return newEventPublisher(client, qos, logger)
}

func newEventPublisher(client asyncPublisher, qos byte, logger Logger) *EventPublisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &EventPublisher{client: client, qos: qos, logger: logger}
}

// Notify implements registry.Notifier.
func (p *EventPublisher) Notify(ev registry.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("encoding registry event", "event", ev.Type, "error", err)
		return
	}

	topic := p.client.Topics().RegistryEvent(string(ev.Type))
	if err := p.client.PublishAsync(topic, payload, p.qos, false); err != nil {
		p.logger.Warn("dropping registry event", "topic", topic, "error", err)
	}
}

var _ registry.Notifier = (*EventPublisher)(nil)
