// Package reconcile trues up per-wallet ledger balances against the channel
// asset view observed on the node.
//
// Reconciliation only moves the ledger toward observed channel state. Assets
// recorded in the ledger but absent from every channel are left alone; drift
// for them is corrected once the asset reappears in a channel.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tapbridge/tapbridge/internal/assets"
	"github.com/tapbridge/tapbridge/internal/ledger"
	"github.com/tapbridge/tapbridge/internal/syncutil"
	"github.com/tapbridge/tapbridge/internal/traces"
)

// ChannelAssetSource provides the current channel asset view.
type ChannelAssetSource interface {
	ListChannelAssets(ctx context.Context, force bool) ([]assets.ChannelAsset, error)
}

// BalanceStore reads ledger balances and records corrective adjustments.
type BalanceStore interface {
	GetBalances(ctx context.Context, walletID string) ([]ledger.Balance, error)
	RecordAdjustment(ctx context.Context, walletID, assetID string, delta int64, description string) (*ledger.Transaction, error)
}

// SyncedEntry records one applied adjustment.
type SyncedEntry struct {
	AssetID    string `json:"asset_id"`
	Name       string `json:"name"`
	OldBalance int64  `json:"old_balance"`
	NewBalance int64  `json:"new_balance"`
	Adjustment int64  `json:"adjustment"`
	Type       string `json:"type"`
}

// NoChangeEntry records one asset whose balances already matched.
type NoChangeEntry struct {
	AssetID string `json:"asset_id"`
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

// ErrorEntry records one asset whose adjustment failed, or a run-level
// failure under the empty asset id.
type ErrorEntry struct {
	AssetID string `json:"asset_id,omitempty"`
	Name    string `json:"name,omitempty"`
	Error   string `json:"error"`
}

// Outcome is the full result of one reconciliation pass.
type Outcome struct {
	Synced   []SyncedEntry   `json:"synced"`
	NoChange []NoChangeEntry `json:"no_change"`
	Errors   []ErrorEntry    `json:"errors"`
}

// Engine runs balance reconciliation passes.
type Engine struct {
	source ChannelAssetSource
	store  BalanceStore
	locks  *syncutil.KeyedMutex
	logger *slog.Logger
}

// NewEngine creates a reconciliation engine.
func NewEngine(source ChannelAssetSource, store BalanceStore, logger *slog.Logger) *Engine {
	return &Engine{
		source: source,
		store:  store,
		locks:  syncutil.NewKeyedMutex(),
		logger: logger,
	}
}

// SyncBalances reconciles one wallet's ledger against current channel state.
// The pass always force-refreshes the channel view; a cached snapshot could
// re-apply drift that was already corrected.
//
// Concurrent calls for the same wallet are serialized: two overlapping passes
// would both observe the pre-adjustment balance and double-apply the
// correction. The returned Outcome is never nil; run-level failures appear as
// a single generic error entry.
func (e *Engine) SyncBalances(ctx context.Context, walletID string) *Outcome {
	ctx, span := traces.StartSpan(ctx, "reconcile.SyncBalances",
		attribute.String("wallet_id", walletID))
	defer span.End()

	outcome := &Outcome{}

	unlock, err := e.locks.Lock(ctx, walletID)
	if err != nil {
		outcome.Errors = append(outcome.Errors, ErrorEntry{
			Error: fmt.Sprintf("sync aborted: %v", err),
		})
		return outcome
	}
	defer unlock()

	start := time.Now()
	defer func() {
		runDuration.Observe(time.Since(start).Seconds())
		mismatchGauge.Set(float64(len(outcome.Synced)))
	}()

	channelAssets, err := e.source.ListChannelAssets(ctx, true)
	if err != nil {
		runErrors.Inc()
		e.logger.Error("reconciliation fetch failed", "wallet_id", walletID, "error", err)
		outcome.Errors = append(outcome.Errors, ErrorEntry{
			Error: fmt.Sprintf("channel asset fetch failed: %v", err),
		})
		return outcome
	}

	// Sum local balances per asset across all channels; channel identity
	// does not matter for the wallet-level total.
	channelBalances := make(map[string]int64)
	names := make(map[string]string)
	for _, ca := range channelAssets {
		channelBalances[ca.AssetID] += ca.LocalBalance
		if _, ok := names[ca.AssetID]; !ok {
			names[ca.AssetID] = ca.Name
		}
	}

	balances, err := e.store.GetBalances(ctx, walletID)
	if err != nil {
		runErrors.Inc()
		e.logger.Error("reconciliation balance read failed", "wallet_id", walletID, "error", err)
		outcome.Errors = append(outcome.Errors, ErrorEntry{
			Error: fmt.Sprintf("ledger balance read failed: %v", err),
		})
		return outcome
	}
	ledgerBalances := make(map[string]int64, len(balances))
	for _, bal := range balances {
		ledgerBalances[bal.AssetID] = bal.Balance
	}

	assetIDs := make([]string, 0, len(channelBalances))
	for assetID := range channelBalances {
		assetIDs = append(assetIDs, assetID)
	}
	sort.Strings(assetIDs)

	for _, assetID := range assetIDs {
		target := channelBalances[assetID]
		current := ledgerBalances[assetID]
		diff := target - current

		if diff == 0 {
			outcome.NoChange = append(outcome.NoChange, NoChangeEntry{
				AssetID: assetID,
				Name:    names[assetID],
				Balance: current,
			})
			continue
		}

		direction := ledger.TypeCredit
		if diff < 0 {
			direction = ledger.TypeDebit
		}
		description := fmt.Sprintf("Balance sync with channel state: %s to %d", direction, target)

		if _, err := e.store.RecordAdjustment(ctx, walletID, assetID, diff, description); err != nil {
			adjustmentsTotal.WithLabelValues("failed").Inc()
			e.logger.Warn("adjustment failed",
				"wallet_id", walletID, "asset_id", assetID, "adjustment", diff, "error", err)
			outcome.Errors = append(outcome.Errors, ErrorEntry{
				AssetID: assetID,
				Name:    names[assetID],
				Error:   err.Error(),
			})
			continue
		}

		adjustmentsTotal.WithLabelValues(direction).Inc()
		e.logger.Info("balance adjusted",
			"wallet_id", walletID, "asset_id", assetID,
			"old_balance", current, "new_balance", target, "adjustment", diff)
		outcome.Synced = append(outcome.Synced, SyncedEntry{
			AssetID:    assetID,
			Name:       names[assetID],
			OldBalance: current,
			NewBalance: target,
			Adjustment: diff,
			Type:       direction,
		})
	}

	return outcome
}
