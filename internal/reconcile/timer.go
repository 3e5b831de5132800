package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Timer periodically reconciles the default wallet.
type Timer struct {
	engine   *Engine
	walletID string
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates a timer that syncs walletID every interval.
func NewTimer(engine *Engine, walletID string, interval time.Duration, logger *slog.Logger) *Timer {
	return &Timer{
		engine:   engine,
		walletID: walletID,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the periodic sync loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeRun(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in reconcile timer", "panic", fmt.Sprint(r))
		}
	}()

	outcome := t.engine.SyncBalances(ctx, t.walletID)
	if len(outcome.Errors) > 0 {
		t.logger.Warn("scheduled sync finished with errors",
			"wallet_id", t.walletID, "errors", len(outcome.Errors))
	}
}
