// Package database provides SQLite connectivity for CareWatch Core.
//
// The database only holds entity snapshots: the last successful persons,
// devices and mappings fetch, so a restarted instance can serve cached
// lists before the monitoring backend answers.
//
// This package manages:
//   - Connection setup with WAL mode and busy timeout
//   - Embedded schema migrations (see the migrations package)
//   - Health checks
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements. The database file is
// restricted to 0600.
package database
