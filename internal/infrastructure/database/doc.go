// Package database provides the console's local SQLite storage.
//
// The console keeps only client-side state here, primarily the persisted
// session row that lets a restart resume without a fresh login. The
// package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Embedded schema migrations (additive-only)
//   - A health check surfaced through the gate endpoint
//
// The file is created with 0600 permissions because the session row
// contains a bearer token. All queries use parameterised statements.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are registered by importing the migrations package,
// which embeds them and assigns MigrationsFS in its init.
//
// Migrations are additive-only: new columns carry DEFAULT values and
// columns are never dropped or renamed, so an older binary can still read
// a newer database file. Each migration ships an .up.sql and a .down.sql.
package database
