package assets

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// NodeInfoSource looks up the advertised alias for a routing node.
type NodeInfoSource interface {
	NodeAlias(ctx context.Context, pubkey string) (string, error)
}

// AliasResolver memoizes peer alias lookups. Entries, including fallback
// truncated-key values, are never invalidated by time; the LRU capacity
// bounds growth under high peer churn.
type AliasResolver struct {
	nodes  NodeInfoSource
	cache  *lru.Cache[string, string]
	logger *slog.Logger
}

// NewAliasResolver creates a resolver with the given cache capacity.
func NewAliasResolver(nodes NodeInfoSource, capacity int, logger *slog.Logger) (*AliasResolver, error) {
	cache, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, err
	}
	return &AliasResolver{nodes: nodes, cache: cache, logger: logger}, nil
}

// Resolve returns the alias for pubkey, querying the routing node on a cache
// miss. On any failure or empty alias it caches and returns a truncated form
// of the pubkey so repeated failures do not hammer the daemon.
func (r *AliasResolver) Resolve(ctx context.Context, pubkey string) string {
	if alias, ok := r.cache.Get(pubkey); ok {
		return alias
	}

	alias, err := r.nodes.NodeAlias(ctx, pubkey)
	if err != nil {
		r.logger.Debug("node alias lookup failed", "pubkey", truncateKey(pubkey), "error", err)
	}
	if alias == "" {
		alias = truncateKey(pubkey)
	}
	r.cache.Add(pubkey, alias)
	return alias
}

func truncateKey(pubkey string) string {
	if len(pubkey) > 16 {
		return pubkey[:16] + "..."
	}
	return pubkey + "..."
}
