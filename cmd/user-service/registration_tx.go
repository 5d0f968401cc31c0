package main

import (
	"context"
	"database/sql"
	"time"

	"fintech-id/internal/identity/service"
	"fintech-id/internal/identity/store"
	dErrors "fintech-id/pkg/domain-errors"
	"fintech-id/pkg/platform/tx"
)

const defaultRegistrationTxTimeout = 5 * time.Second

// registrationPostgresTx runs the registration chain in one SQL transaction.
type registrationPostgresTx struct {
	db      *sql.DB
	store   *store.PostgresStore
	timeout time.Duration
}

func newRegistrationPostgresTx(db *sql.DB, st *store.PostgresStore, timeout time.Duration) *registrationPostgresTx {
	return &registrationPostgresTx{db: db, store: st, timeout: timeout}
}

func (t *registrationPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultRegistrationTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin transaction")
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(tx.WithTx(ctx, sqlTx), t.store); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit registration")
	}
	return nil
}
