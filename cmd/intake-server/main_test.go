package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/celloxen/intake/internal/config"
)

func TestRedisClient_Empty(t *testing.T) {
	c, err := redisClient("")
	if err != nil || c != nil {
		t.Errorf("expected no client for an empty url, got %v, %v", c, err)
	}
}

func TestRedisClient_ParsesURL(t *testing.T) {
	c, err := redisClient("redis://:secret@cache.internal:6380/3")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	opts := c.Options()
	if opts.Addr != "cache.internal:6380" || opts.Password != "secret" || opts.DB != 3 {
		t.Errorf("unexpected options %s %q %d", opts.Addr, opts.Password, opts.DB)
	}
}

func TestRedisClient_Invalid(t *testing.T) {
	if _, err := redisClient("http://not-redis"); err == nil {
		t.Error("expected error for a non-redis scheme")
	}
}

func TestClinicGrid(t *testing.T) {
	cfg := &config.Config{ClinicOpen: "08:00", ClinicClose: "12:00", ClinicSlotMinutes: 60, ClinicTimezone: "Europe/London"}
	g, err := clinicGrid(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if g.SlotLength() != time.Hour {
		t.Errorf("expected hour slots, got %s", g.SlotLength())
	}
	if g.Location().String() != "Europe/London" {
		t.Errorf("unexpected location %s", g.Location())
	}
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, g.Location())
	if n := len(g.DaySlots(day)); n != 4 {
		t.Errorf("expected 4 slots, got %d", n)
	}

	cfg.ClinicTimezone = "Nowhere/Land"
	if _, err := clinicGrid(cfg); err == nil {
		t.Error("expected error for unknown timezone")
	}
}

func TestNewLogger_Level(t *testing.T) {
	l := newLogger(&config.Config{Env: "production", LogLevel: "WARN"})
	if l.GetLevel() != zerolog.WarnLevel {
		t.Errorf("expected warn level, got %s", l.GetLevel())
	}
	l = newLogger(&config.Config{Env: "production", LogLevel: "chatty"})
	if l.GetLevel() != zerolog.InfoLevel {
		t.Errorf("expected info fallback, got %s", l.GetLevel())
	}
}

func TestEvery_StopWaitsForRun(t *testing.T) {
	var running, runs atomic.Int32
	started := make(chan struct{}, 1)
	stop := every(context.Background(), time.Millisecond, func(context.Context) {
		running.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(20 * time.Millisecond)
		runs.Add(1)
		running.Add(-1)
	})

	<-started
	stop()
	if running.Load() != 0 {
		t.Fatal("stop returned while fn was still running")
	}
	n := runs.Load()
	time.Sleep(10 * time.Millisecond)
	if runs.Load() != n {
		t.Error("fn ran after stop")
	}
}

func TestEvery_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stop := every(ctx, time.Hour, func(context.Context) {})
	cancel()

	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop blocked after the parent context ended")
	}
}
