// Package config loads and validates gatewayd configuration.
//
// Values are resolved in order: built-in defaults, the YAML file, then
// GATEWAYD_* environment variables. A .env file can seed the environment
// before Load runs.
//
// Secrets (database DSN, MQTT password, InfluxDB token) should be supplied
// through the environment rather than committed to the YAML file.
//
// Usage:
//
//	if err := config.LoadDotEnv(".env"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
