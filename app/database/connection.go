package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewConnection opens the SQLite database backing the dedup store. WAL
// mode keeps feed reads from blocking behind cycle writes. Transactions
// start as writers (BEGIN IMMEDIATE): a deferred transaction that reads
// before writing cannot upgrade its lock once another writer is active,
// and busy_timeout does not cover that upgrade. Taking the write lock up
// front makes busy_timeout queue concurrent upserts instead.
func NewConnection(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: db}, nil
}
