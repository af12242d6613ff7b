package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx   *fakeTx
	opts pgx.TxOptions
}

func (b *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	return b.tx, nil
}

func TestWithTxCommits(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	err := WithTx(context.Background(), b, func(tx pgx.Tx) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.tx.committed {
		t.Fatalf("expected commit")
	}
	if b.opts.IsoLevel != pgx.RepeatableRead {
		t.Fatalf("expected repeatable read, got %s", b.opts.IsoLevel)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("boom")
	err := WithTx(context.Background(), b, func(tx pgx.Tx) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if b.tx.committed || !b.tx.rolledBack {
		t.Fatalf("expected rollback only, committed=%v rolledBack=%v", b.tx.committed, b.tx.rolledBack)
	}
}
