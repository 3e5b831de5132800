package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tapbridge/tapbridge/internal/cache"
	"github.com/tapbridge/tapbridge/internal/lndclient"
	"github.com/tapbridge/tapbridge/internal/metrics"
	"github.com/tapbridge/tapbridge/internal/tapdclient"
	"github.com/tapbridge/tapbridge/internal/traces"
)

// ErrDaemonUnavailable wraps fetch failures from either daemon. Callers map
// it to a 503; a stale cache entry is never served past its TTL in its place.
var ErrDaemonUnavailable = errors.New("asset daemon unavailable")

// Cache keys owned by the Manager.
const (
	cacheKeyAssets        = "assets"
	cacheKeyChannelAssets = "channel-assets"
)

// ChannelLister lists the node's open channels.
type ChannelLister interface {
	ListChannels(ctx context.Context) ([]lndclient.ChannelSnapshot, error)
}

// AssetLister lists the daemon's known assets.
type AssetLister interface {
	ListAssets(ctx context.Context) ([]tapdclient.AssetSnapshot, error)
}

// Manager merges channel custom data with the asset daemon's global listing
// into per-(asset, channel) rows, caching both views behind a shared TTL.
type Manager struct {
	channels ChannelLister
	assets   AssetLister
	aliases  *AliasResolver

	channelCache *cache.Store[[]ChannelAsset]
	assetCache   *cache.Store[[]AggregatedAsset]

	logger *slog.Logger
}

// NewManager wires a Manager around the two daemon clients.
func NewManager(channels ChannelLister, assets AssetLister, aliases *AliasResolver, ttl time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		channels:     channels,
		assets:       assets,
		aliases:      aliases,
		channelCache: cache.New[[]ChannelAsset](ttl),
		assetCache:   cache.New[[]AggregatedAsset](ttl),
		logger:       logger,
	}
}

// ListChannelAssets returns every (channel, asset) pair currently open.
// force bypasses the cache; a failed refresh leaves any previous entry
// in place so a later call inside the TTL can still serve it.
func (m *Manager) ListChannelAssets(ctx context.Context, force bool) ([]ChannelAsset, error) {
	ctx, span := traces.StartSpan(ctx, "assets.ListChannelAssets",
		attribute.Bool("force", force))
	defer span.End()

	if !force {
		if cached, ok := m.channelCache.Get(cacheKeyChannelAssets); ok {
			metrics.AssetCacheHitsTotal.WithLabelValues(cacheKeyChannelAssets, "hit").Inc()
			return cached, nil
		}
		metrics.AssetCacheHitsTotal.WithLabelValues(cacheKeyChannelAssets, "miss").Inc()
	} else {
		metrics.AssetCacheHitsTotal.WithLabelValues(cacheKeyChannelAssets, "bypass").Inc()
	}

	channels, err := m.channels.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list channels: %v", ErrDaemonUnavailable, err)
	}

	entries := make([]ChannelAsset, 0, len(channels))
	for _, ch := range channels {
		parsed, err := parseChannelPayload(ch)
		if err != nil {
			// One malformed channel must not hide the rest.
			metrics.ChannelsSkippedTotal.WithLabelValues("malformed_payload").Inc()
			m.logger.Warn("skipping channel with malformed custom data",
				"channel_point", ch.ChannelPoint, "error", err)
			continue
		}
		for i := range parsed {
			parsed[i].PeerAlias = m.aliases.Resolve(ctx, ch.RemotePubkey)
		}
		entries = append(entries, parsed...)
	}

	m.channelCache.Set(cacheKeyChannelAssets, entries)
	return entries, nil
}

// ListAssets returns the merged per-(asset, channel) view. Assets the daemon
// knows but that sit in no channel are excluded; assets seen only in a
// channel get a synthesized CHANNEL_ONLY row. Row order follows channel
// iteration order, with each asset's daemon metadata attached where known.
func (m *Manager) ListAssets(ctx context.Context, force bool) ([]AggregatedAsset, error) {
	ctx, span := traces.StartSpan(ctx, "assets.ListAssets",
		attribute.Bool("force", force))
	defer span.End()

	if !force {
		if cached, ok := m.assetCache.Get(cacheKeyAssets); ok {
			metrics.AssetCacheHitsTotal.WithLabelValues(cacheKeyAssets, "hit").Inc()
			return cached, nil
		}
		metrics.AssetCacheHitsTotal.WithLabelValues(cacheKeyAssets, "miss").Inc()
	} else {
		metrics.AssetCacheHitsTotal.WithLabelValues(cacheKeyAssets, "bypass").Inc()
	}

	channelAssets, err := m.ListChannelAssets(ctx, force)
	if err != nil {
		return nil, err
	}

	daemonAssets, err := m.assets.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list assets: %v", ErrDaemonUnavailable, err)
	}

	byID := make(map[string]tapdclient.AssetSnapshot, len(daemonAssets))
	for _, a := range daemonAssets {
		// First listing wins; the daemon reports one entry per UTXO and
		// genesis metadata is identical across them.
		if _, ok := byID[a.AssetID]; !ok {
			byID[a.AssetID] = a
		}
	}

	merged := make([]AggregatedAsset, 0, len(channelAssets))
	for _, ca := range channelAssets {
		row := AggregatedAsset{
			AssetID:        ca.AssetID,
			Name:           ca.Name,
			Type:           TypeChannelOnly,
			Amount:         ca.LocalBalance,
			DecimalDisplay: ca.DecimalDisplay,
			ChannelInfo: &ChannelInfo{
				ChannelPoint:  ca.ChannelPoint,
				Capacity:      ca.Capacity,
				LocalBalance:  ca.LocalBalance,
				RemoteBalance: ca.RemoteBalance,
				PeerPubkey:    ca.RemotePubkey,
				PeerAlias:     ca.PeerAlias,
				ChannelID:     ca.ChannelID,
				Active:        ca.Active,
			},
		}
		if snap, ok := byID[ca.AssetID]; ok {
			row.Name = snap.Name
			row.Type = snap.Type
			row.GenesisPoint = snap.GenesisPoint
			row.MetaHash = snap.MetaHash
			row.Version = snap.Version
			row.IsSpent = snap.IsSpent
			row.ScriptKey = snap.ScriptKey
			// DecimalDisplay stays the channel entry's value: amounts in
			// the row are channel balances, so they scale by the display
			// precision the channel payload reported, not the daemon's.
		} else if row.Name == "" {
			row.Name = "Unknown Asset"
		}
		merged = append(merged, row)
	}

	m.assetCache.Set(cacheKeyAssets, merged)
	return merged, nil
}

// Invalidate drops both cached views. Reconciliation calls this after a sync
// so the next listing reflects any balance movement immediately.
func (m *Manager) Invalidate() {
	m.assetCache.Invalidate(cacheKeyAssets)
	m.channelCache.Invalidate(cacheKeyChannelAssets)
}
