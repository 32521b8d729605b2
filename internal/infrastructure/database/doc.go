// Package database provides SQLite connectivity for the auth core.
//
// This package manages:
//   - The connection, with WAL mode and foreign keys enabled
//   - Embedded schema migrations recorded in schema_migrations
//   - Transaction helpers used by the repositories
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is created with 0600 permissions
//   - Passwords are stored as Argon2id hashes and tokens as SHA-256 digests
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive. Each version ships a .up.sql and a .down.sql.
package database
