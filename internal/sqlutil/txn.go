package sqlutil

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// TxRunner runs a function inside a transaction. The relay uses it for its
// grouped writes (log insert + outbox status flip must commit together).
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

type DB struct {
	db *sqlx.DB
}

func NewDB(db *sqlx.DB) *DB {
	return &DB{db: db}
}

// WithinTx executes fn inside a *sqlx.Tx.
// If fn returns an error the tx rolls back, else it commits.
func (d *DB) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// Ext picks the transaction when one is given, the pool otherwise. Lets
// repository methods run standalone or join a caller's transaction.
func Ext(tx *sqlx.Tx, db *sqlx.DB) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return db
}
