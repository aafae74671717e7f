package utils

import (
	"context"
	"database/sql"
	"testing"
)

func TestConn_FallsBackToDB(t *testing.T) {
	db := &sql.DB{}
	if got := Conn(context.Background(), db); got != db {
		t.Fatalf("expected db handle when no tx in context")
	}
	if InTx(context.Background()) {
		t.Fatalf("expected no tx in plain context")
	}
}

func TestConn_PrefersContextTx(t *testing.T) {
	tx := &sql.Tx{}
	ctx := context.WithValue(context.Background(), txKey{}, tx)
	if got := Conn(ctx, &sql.DB{}); got != tx {
		t.Fatalf("expected tx from context")
	}
	if !InTx(ctx) {
		t.Fatalf("expected InTx to report the tx")
	}
}

func TestWithTx_JoinsOuterTx(t *testing.T) {
	tx := &sql.Tx{}
	ctx := context.WithValue(context.Background(), txKey{}, tx)

	var seen *sql.Tx
	err := WithTx(ctx, nil, nil, func(ctx context.Context, inner *sql.Tx) error {
		seen = inner
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if seen != tx {
		t.Fatalf("expected nested WithTx to reuse outer tx")
	}
}

func TestPostgresPoolConfig_Defaults(t *testing.T) {
	c := PostgresPoolConfig{}.withDefaults()
	if c.MaxOpenConns != 25 || c.PingTimeout <= 0 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}
