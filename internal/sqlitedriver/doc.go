// Package sqlitedriver opens SQLite databases through the pure-Go
// modernc.org/sqlite driver with the connection pragmas the value store
// relies on: WAL journaling, a busy timeout instead of immediate SQLITE_BUSY,
// foreign keys, and IMMEDIATE write transactions.
//
// Usage:
//
//	db, err := sqlitedriver.Open(ctx, path, sqlitedriver.Options{})
//	defer db.Close()
package sqlitedriver
