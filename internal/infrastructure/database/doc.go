// Package database provides the SQLite connection that backs the bridge's
// snapshot history.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Additive schema migrations read from an fs.FS (normally the embedded
//     migrations package)
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
// Migrations are additive-only: new columns must be NULLABLE or carry a
// DEFAULT, and every .up.sql ships with a matching .down.sql.
package database
