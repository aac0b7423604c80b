// Package api implements the HTTP REST API and WebSocket event stream for
// the gateway registry.
//
// This package provides:
//   - REST endpoints to list, read and create gateways and peripherals,
//     and to delete peripherals
//   - A WebSocket hub broadcasting committed registry changes
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Routes
//
// All routes live under api.base_path (default /api):
//
//	GET    /gateways                   list
//	POST   /gateways                   create, 201 + Location
//	GET    /gateways/{id}              detail
//	GET    /gateways/{id}/peripherals  peripherals of one gateway
//	GET    /peripherals                list
//	POST   /peripherals                create, 201 + Location
//	GET    /peripherals/{id}           detail
//	DELETE /peripherals/{id}           204
//	GET    /health                     200, or 503 when the store is down
//	GET    /ws                         WebSocket upgrade (websocket.path)
//
// # Errors
//
// A failed validation answers 400 with the field-keyed violation map:
//
//	{"address":["invalid_address"],"serial":["duplicate_serial"]}
//
// Every other failure uses the {status, code, message} envelope with codes
// malformed_payload (400), not_found (404), store_unavailable (503) and
// internal_error (500). A non-numeric id is a 404.
//
// # Event stream
//
// GET {base_path}{websocket.path} upgrades to a WebSocket carrying committed
// registry changes. A client chooses what it receives with a filter:
//
//	{"type":"subscribe","id":"1","filter":{"events":["peripheral.created"],"gateways":[3]}}
//
// "*" selects every event type. Until a subscribe names gateways, every
// gateway matches; after that only the gateways left in the filter do, even
// when unsubscribe has removed all of them. Unsubscribing every event type
// clears the filter entirely. Each matching change arrives as
// {"type":"event","event":{...}}.
// A client that stops reading loses events instead of slowing writers.
package api
