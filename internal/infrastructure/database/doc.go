// Package database provides SQLite connectivity for the dockd event journal.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations read from an fs.FS (normally the embedded
//     migrations package)
//   - Connection lifecycle and health checks
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive. Each file pair is named
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql.
package database
