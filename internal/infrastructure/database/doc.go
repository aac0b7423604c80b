// Package database provides the storage connections used by gatewayd.
//
// The default backend is a single SQLite file opened through
// database/sql with foreign keys enforced, WAL mode and a busy timeout.
// Its schema is applied by Migrate from the embedded SQL files of the
// migrations package:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Server databases (PostgreSQL, MySQL) are reached through GORM with
// OpenGorm; their tables are created by the registry's AutoMigrate.
//
// All queries use parameterised statements. The SQLite file is created
// with 0600 permissions.
package database
