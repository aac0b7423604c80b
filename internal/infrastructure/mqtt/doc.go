// Package mqtt publishes gatewayd registry events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained online/offline status with a Last Will for crash detection
//   - Registry event publishing via EventPublisher (a registry.Notifier)
//
// # Topics
//
// All topics live under the configured prefix (mqtt.topic_prefix):
//
//	<prefix>/system/status                 retained, online|offline
//	<prefix>/registry/gateway.created      not retained
//	<prefix>/registry/peripheral.created   not retained
//	<prefix>/registry/peripheral.deleted   not retained
//
// Event payloads are the JSON encoding of registry.Event.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	svc.SetNotifier(mqtt.NewEventPublisher(client, byte(cfg.MQTT.QoS), log))
//
// Event delivery is best effort. Publishing never blocks the registry
// operation that produced the event; failures are logged at warn level.
package mqtt
