// Package database provides SQLite connectivity for Gray Logic Home.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Immediate-lock transactions so read-merge-write sequences are atomic
//   - Schema migrations applied from an fs.FS (embedded in production)
//   - Connection lifecycle and health checks
//
// All queries use parameterised statements. The database file is restricted
// to 0600.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
