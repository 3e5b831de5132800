package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tapbridge/tapbridge/internal/config"
	"github.com/tapbridge/tapbridge/internal/lndclient"
	"github.com/tapbridge/tapbridge/internal/tapdclient"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeDaemons implements the daemon interfaces for testing.
type fakeDaemons struct {
	channels   []lndclient.ChannelSnapshot
	assets     []tapdclient.AssetSnapshot
	channelErr error
}

func (f *fakeDaemons) ListChannels(context.Context) ([]lndclient.ChannelSnapshot, error) {
	return f.channels, f.channelErr
}

func (f *fakeDaemons) ListAssets(context.Context) ([]tapdclient.AssetSnapshot, error) {
	return f.assets, nil
}

func (f *fakeDaemons) NodeAlias(context.Context, string) (string, error) {
	return "carol", nil
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:           "0",
		Env:            "development",
		LogLevel:       "error",
		LNDHost:        "localhost:10009",
		TapdHost:       "localhost:10029",
		AssetCacheTTL:  time.Minute,
		AliasCacheSize: 16,
		RPCTimeout:     time.Second,
	}
}

// newTestServer creates a server with fake daemon clients
func newTestServer(t *testing.T, daemons *fakeDaemons) *Server {
	t.Helper()
	s, err := New(testConfig(), WithDaemons(daemons, daemons, daemons))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}


// hexAssetID builds a 64-character hex asset ID from a two-character seed.
func hexAssetID(seed string) string {
	return strings.Repeat(seed, 32)
}

func channelWithAsset(assetID string) lndclient.ChannelSnapshot {
	payload := `{
		"funding_assets": [{"asset_genesis": {"asset_id": "` + assetID + `", "name": "tok"}}],
		"local_assets": [{"asset_id": "` + assetID + `", "amount": 100}],
		"remote_assets": [],
		"capacity": 200
	}`
	return lndclient.ChannelSnapshot{
		ChanID:            77,
		ChannelPoint:      "cp:0",
		RemotePubkey:      "02abcd",
		Active:            true,
		CustomChannelData: []byte(payload),
	}
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.Router().ServeHTTP(w, req)
	return w
}

func TestListAssetsEndpoint(t *testing.T) {
	daemons := &fakeDaemons{
		channels: []lndclient.ChannelSnapshot{channelWithAsset(hexAssetID("aa"))},
		assets:   []tapdclient.AssetSnapshot{{AssetID: hexAssetID("aa"), Name: "token", Type: "NORMAL"}},
	}
	s := newTestServer(t, daemons)

	w := doRequest(s, http.MethodGet, "/api/v1/assets")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Assets []map[string]interface{} `json:"assets"`
		Count  int                      `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	if resp.Assets[0]["asset_id"] != hexAssetID("aa") {
		t.Errorf("asset_id = %v, want the channel asset ID", resp.Assets[0]["asset_id"])
	}
	if resp.Assets[0]["amount"] != float64(100) {
		t.Errorf("amount = %v, want 100 (channel local balance)", resp.Assets[0]["amount"])
	}
}

func TestListAssetsDaemonUnavailable(t *testing.T) {
	daemons := &fakeDaemons{channelErr: errors.New("connection refused")}
	s := newTestServer(t, daemons)

	w := doRequest(s, http.MethodGet, "/api/v1/assets")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "daemon_unavailable" {
		t.Errorf("error = %q, want daemon_unavailable", resp["error"])
	}
}

func TestChannelAssetsEndpoint(t *testing.T) {
	daemons := &fakeDaemons{channels: []lndclient.ChannelSnapshot{channelWithAsset(hexAssetID("bb"))}}
	s := newTestServer(t, daemons)

	w := doRequest(s, http.MethodGet, "/api/v1/channel-assets")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		ChannelAssets []map[string]interface{} `json:"channel_assets"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.ChannelAssets) != 1 {
		t.Fatalf("channel_assets len = %d, want 1", len(resp.ChannelAssets))
	}
	if resp.ChannelAssets[0]["peer_alias"] != "carol" {
		t.Errorf("peer_alias = %v, want carol", resp.ChannelAssets[0]["peer_alias"])
	}
}

func TestSyncEndpointAppliesAdjustment(t *testing.T) {
	daemons := &fakeDaemons{channels: []lndclient.ChannelSnapshot{channelWithAsset(hexAssetID("cc"))}}
	s := newTestServer(t, daemons)

	w := doRequest(s, http.MethodPost, "/api/v1/wallets/wallet-1/sync")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Outcome struct {
			Synced []struct {
				AssetID    string `json:"asset_id"`
				NewBalance int64  `json:"new_balance"`
			} `json:"synced"`
		} `json:"outcome"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Outcome.Synced) != 1 {
		t.Fatalf("synced len = %d, want 1", len(resp.Outcome.Synced))
	}
	if resp.Outcome.Synced[0].NewBalance != 100 {
		t.Errorf("new_balance = %d, want 100", resp.Outcome.Synced[0].NewBalance)
	}

	// Balances endpoint reflects the adjustment.
	w = doRequest(s, http.MethodGet, "/api/v1/wallets/wallet-1/balances")
	if w.Code != http.StatusOK {
		t.Fatalf("balances status = %d, want 200", w.Code)
	}
	var balResp struct {
		Balances []struct {
			AssetID string `json:"asset_id"`
			Balance int64  `json:"balance"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &balResp); err != nil {
		t.Fatalf("decode balances: %v", err)
	}
	if len(balResp.Balances) != 1 || balResp.Balances[0].Balance != 100 {
		t.Errorf("balances = %+v, want one entry of 100", balResp.Balances)
	}
}

func TestTransactionsEndpointFiltersAndLimits(t *testing.T) {
	daemons := &fakeDaemons{channels: []lndclient.ChannelSnapshot{channelWithAsset(hexAssetID("dd"))}}
	s := newTestServer(t, daemons)

	doRequest(s, http.MethodPost, "/api/v1/wallets/wallet-1/sync")

	w := doRequest(s, http.MethodGet, "/api/v1/wallets/wallet-1/transactions?asset_id="+hexAssetID("dd"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Transactions []map[string]interface{} `json:"transactions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode transactions: %v", err)
	}
	if len(resp.Transactions) != 1 {
		t.Errorf("transactions len = %d, want 1", len(resp.Transactions))
	}

	w = doRequest(s, http.MethodGet, "/api/v1/wallets/wallet-1/transactions?asset_id="+hexAssetID("ff"))
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Transactions) != 0 {
		t.Errorf("transactions for other asset = %d, want 0", len(resp.Transactions))
	}

	w = doRequest(s, http.MethodGet, "/api/v1/wallets/wallet-1/transactions?limit=bogus")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}
}

func TestListAssetsOpportunisticSync(t *testing.T) {
	daemons := &fakeDaemons{channels: []lndclient.ChannelSnapshot{channelWithAsset(hexAssetID("ee"))}}
	s := newTestServer(t, daemons)

	w := doRequest(s, http.MethodGet, "/api/v1/assets?wallet_id=wallet-1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Sync struct {
			Synced []map[string]interface{} `json:"synced"`
		} `json:"sync"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Sync.Synced) != 1 {
		t.Errorf("sync.synced len = %d, want 1", len(resp.Sync.Synced))
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, &fakeDaemons{})

	// Injected fakes have no Ping; daemon checks report skipped, not failing.
	w := doRequest(s, http.MethodGet, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200: %s", w.Code, w.Body.String())
	}

	// Not ready until Run has started.
	w = doRequest(s, http.MethodGet, "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", w.Code)
	}

	s.ready.Store(true)
	w = doRequest(s, http.MethodGet, "/readyz")
	if w.Code != http.StatusOK {
		t.Fatalf("readyz status = %d, want 200", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeDaemons{})

	w := doRequest(s, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", w.Code)
	}
}

func TestInvalidWalletIDRejected(t *testing.T) {
	s := newTestServer(t, &fakeDaemons{})

	w := doRequest(s, http.MethodGet, "/api/v1/wallets/bad;wallet/balances")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "invalid_wallet_id" {
		t.Errorf("error = %q, want invalid_wallet_id", resp["error"])
	}
}

func TestInvalidAssetIDQueryRejected(t *testing.T) {
	s := newTestServer(t, &fakeDaemons{})

	w := doRequest(s, http.MethodGet, "/api/v1/wallets/wallet-1/transactions?asset_id=nothex")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestSecurityHeadersPresent(t *testing.T) {
	s := newTestServer(t, &fakeDaemons{})

	w := doRequest(s, http.MethodGet, "/api")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy not set")
	}
}
