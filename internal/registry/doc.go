// Package registry tracks network gateways and the peripherals attached
// to them.
//
// The package is split along the request path:
//   - validation.go decides whether a candidate record may be stored and
//     reports every violated rule at once
//   - representation.go decodes inbound payloads and renders records into
//     hyperlinked list and detail shapes
//   - service.go orchestrates both around a Store, serializing
//     check-and-write sequences per serial and per gateway
//
// Two Store implementations are provided: SQLiteStore over database/sql,
// and GormStore for PostgreSQL, MySQL or SQLite through GORM.
//
// Usage:
//
//	store := registry.NewSQLiteStore(db.DB)
//	svc := registry.NewService(store, registry.NewLinks("/api"))
//	svc.SetLogger(logger)
//
//	in, parsed, err := registry.ParseGatewayInput(r.Body)
//	detail, err := svc.CreateGateway(ctx, in, parsed)
package registry
