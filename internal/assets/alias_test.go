package assets

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, nodes *fakeNodeInfo, capacity int) *AliasResolver {
	t.Helper()
	r, err := NewAliasResolver(nodes, capacity, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return r
}

func TestResolveCachesAliases(t *testing.T) {
	nodes := &fakeNodeInfo{aliases: map[string]string{"02aabbccddeeff0011": "alice"}}
	r := newTestResolver(t, nodes, 8)

	assert.Equal(t, "alice", r.Resolve(context.Background(), "02aabbccddeeff0011"))
	assert.Equal(t, "alice", r.Resolve(context.Background(), "02aabbccddeeff0011"))
	assert.Equal(t, 1, nodes.calls)
}

func TestResolveFallbackOnLookupFailure(t *testing.T) {
	nodes := &fakeNodeInfo{}
	r := newTestResolver(t, nodes, 8)

	got := r.Resolve(context.Background(), "02aabbccddeeff00112233")
	assert.Equal(t, "02aabbccddeeff00"+"...", got)

	// Failures are cached too; the daemon is not asked again.
	r.Resolve(context.Background(), "02aabbccddeeff00112233")
	assert.Equal(t, 1, nodes.calls)
}

func TestResolveFallbackShortKey(t *testing.T) {
	r := newTestResolver(t, &fakeNodeInfo{}, 8)
	assert.Equal(t, "02ab...", r.Resolve(context.Background(), "02ab"))
}

func TestResolverEviction(t *testing.T) {
	nodes := &fakeNodeInfo{aliases: map[string]string{
		"02aaaaaaaaaaaaaaaaaa": "a",
		"02bbbbbbbbbbbbbbbbbb": "b",
	}}
	r := newTestResolver(t, nodes, 1)

	r.Resolve(context.Background(), "02aaaaaaaaaaaaaaaaaa")
	r.Resolve(context.Background(), "02bbbbbbbbbbbbbbbbbb")
	r.Resolve(context.Background(), "02aaaaaaaaaaaaaaaaaa")
	assert.Equal(t, 3, nodes.calls, "capacity 1 evicts the older entry")
}
