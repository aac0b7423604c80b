// Package logging provides structured logging for gatewayd.
//
// It wraps log/slog so every entry carries the service name and build
// version. JSON is the default output; "text" is available for local
// development.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log DSNs, broker passwords or InfluxDB tokens.
package logging
