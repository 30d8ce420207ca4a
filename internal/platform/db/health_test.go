package db

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(pgx.ErrNoRows) {
		t.Error("expected pgx.ErrNoRows to be recognised")
	}
	if IsNoRows(errors.New("other")) {
		t.Error("unexpected match on unrelated error")
	}
}

func TestClient_ObserveConnectionFailure(t *testing.T) {
	c := &Client{logger: zerolog.Nop()}
	c.ready.Store(true)

	c.observe(errors.New("dial tcp: connection refused"))
	if c.Ready() {
		t.Error("connection failure should mark client not ready")
	}

	c.observe(nil)
	if !c.Ready() {
		t.Error("successful round-trip should mark client ready")
	}
}

func TestClient_ObserveServerError(t *testing.T) {
	c := &Client{logger: zerolog.Nop()}
	c.ready.Store(true)

	c.observe(&pgconn.PgError{Code: "23505", Message: "duplicate key"})
	if !c.Ready() {
		t.Error("SQL errors from a live server must not flip readiness")
	}
}
