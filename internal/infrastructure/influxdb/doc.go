// Package influxdb records gatewayd registry events in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched writes and health monitoring.
//
// Every committed registry change becomes a point in the registry_events
// measurement:
//
//	registry_events,event=peripheral.created,gateway_id=3 free_slots=6i,peripheral_id=7i,peripherals=4i
//
// which makes per-gateway load over time a simple query.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	svc.SetNotifier(client) // Client implements registry.Notifier
//
// # Error Handling
//
// Writes are non-blocking; batch failures are delivered to the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
