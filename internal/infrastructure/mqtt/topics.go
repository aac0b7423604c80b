package mqtt

import "fmt"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "gatewayd"

// Topics builds gatewayd MQTT topics under a configurable prefix so several
// registries can share one broker.
//
//	topics := mqtt.NewTopics("site-a")
//	topics.RegistryEvent("peripheral.created")
//	// Returns: "site-a/registry/peripheral.created"
type Topics struct {
	Prefix string
}

// NewTopics returns topic builders for prefix, falling back to
// DefaultTopicPrefix when it is empty.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

// RegistryEvent returns the topic a registry event type is published on.
//
// Example: gatewayd/registry/gateway.created
func (t Topics) RegistryEvent(eventType string) string {
	return fmt.Sprintf("%s/registry/%s", t.Prefix, eventType)
}

// AllRegistryEvents returns a wildcard matching every registry event.
//
// Example: gatewayd/registry/+
func (t Topics) AllRegistryEvents() string {
	return t.Prefix + "/registry/+"
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: gatewayd/system/status
func (t Topics) SystemStatus() string {
	return t.Prefix + "/system/status"
}
