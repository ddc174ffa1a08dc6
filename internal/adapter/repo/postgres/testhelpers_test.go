package postgres_test

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// rowStub implements pgx.Row
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

func scanInt64(v int64) rowStub {
	return rowStub{scan: func(dest ...any) error {
		*(dest[0].(*int64)) = v
		return nil
	}}
}

func scanErr(err error) rowStub {
	return rowStub{scan: func(_ ...any) error { return err }}
}

type call struct {
	sql  string
	args []any
}

// poolStub implements postgres.PgxPool for tests. Exec and QueryRow calls are
// recorded; BeginTx hands out tx, which records into the same log.
type poolStub struct {
	mu       sync.Mutex
	execErr  error
	execTag  pgconn.CommandTag
	row      rowStub
	beginErr error
	tx       *txStub
	calls    []call
}

func (p *poolStub) record(sql string, args []any) {
	p.mu.Lock()
	p.calls = append(p.calls, call{sql: sql, args: args})
	p.mu.Unlock()
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.record(sql, args)
	return p.execTag, p.execErr
}

func (p *poolStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	p.record(sql, args)
	if p.row.scan == nil {
		return scanErr(errors.New("no row configured"))
	}
	return p.row
}

func (p *poolStub) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	if p.tx == nil {
		p.tx = &txStub{}
	}
	p.tx.pool = p
	return p.tx, nil
}

// txStub overrides the pgx.Tx methods the repos use; the embedded nil
// interface panics on anything else.
type txStub struct {
	pgx.Tx
	pool       *poolStub
	row        rowStub
	execErr    error
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *txStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.pool.record(sql, args)
	return pgconn.CommandTag{}, t.execErr
}

func (t *txStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	t.pool.record(sql, args)
	if t.row.scan == nil {
		return scanErr(errors.New("no row configured"))
	}
	return t.row
}

func (t *txStub) Commit(_ context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *txStub) Rollback(_ context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}
