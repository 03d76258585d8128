package database

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

type PgPartyRepository struct {
	conn *sqlx.DB
}

func NewPgPartyRepository(dsn string) (*PgPartyRepository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}

	return &PgPartyRepository{conn: db}, nil
}

func (r *PgPartyRepository) Ping(ctx context.Context) error {
	return r.conn.PingContext(ctx)
}

func (r *PgPartyRepository) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success.
func (r *PgPartyRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
