// Package lndclient wraps the routing node's gRPC interface behind the small
// surface the aggregator needs: the channel list and node info lookups.
package lndclient

import (
	"context"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/tapbridge/tapbridge/internal/circuitbreaker"
	"github.com/tapbridge/tapbridge/internal/config"
	"github.com/tapbridge/tapbridge/internal/metrics"
	"github.com/tapbridge/tapbridge/internal/retry"
)

const (
	maxGRPCMsgSize = 32 * 1024 * 1024

	daemonKey    = "lnd"
	maxAttempts  = 3
	retryBackoff = 250 * time.Millisecond
)

// ErrCircuitOpen is returned when repeated failures have tripped the
// breaker and calls are being rejected without dialing.
var ErrCircuitOpen = errors.New("lnd circuit open")

// ChannelSnapshot is a transport-neutral view of one channel as reported by
// the routing node at fetch time. CustomChannelData carries the asset daemon's
// opaque per-channel payload, empty for plain BTC channels.
type ChannelSnapshot struct {
	ChanID            uint64
	ChannelPoint      string
	RemotePubkey      string
	Capacity          int64
	LocalBalance      int64
	RemoteBalance     int64
	Active            bool
	CommitmentType    string
	CustomChannelData []byte
}

// Client dials the routing node per call; connections are not pooled.
// Transient failures are retried with backoff, and a circuit breaker
// rejects calls outright after repeated consecutive failures.
type Client struct {
	cfg     *config.Config
	breaker *circuitbreaker.Breaker
}

// New creates a routing node client from config.
func New(cfg *config.Config) *Client {
	return &Client{
		cfg:     cfg,
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

type macaroonCredential struct {
	macaroon string
}

func (m macaroonCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"macaroon": m.macaroon}, nil
}

func (m macaroonCredential) RequireTransportSecurity() bool {
	return true
}

func (c *Client) dial(ctx context.Context) (*grpc.ClientConn, error) {
	tlsCert, err := os.ReadFile(c.cfg.LNDTLSCertPath)
	if err != nil {
		return nil, fmt.Errorf("read lnd tls cert: %w", err)
	}
	certPool := x509.NewCertPool()
	if ok := certPool.AppendCertsFromPEM(tlsCert); !ok {
		return nil, fmt.Errorf("failed to parse lnd tls cert")
	}

	creds := credentials.NewClientTLSFromCert(certPool, "")
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxGRPCMsgSize)),
	}

	macBytes, err := os.ReadFile(c.cfg.LNDMacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("read lnd macaroon: %w", err)
	}
	opts = append(opts, grpc.WithPerRPCCredentials(macaroonCredential{hex.EncodeToString(macBytes)}))

	return grpc.DialContext(ctx, c.cfg.LNDHost, opts...)
}

// ListChannels returns a snapshot of all channels known to the routing node.
func (c *Client) ListChannels(ctx context.Context) ([]ChannelSnapshot, error) {
	timer := prometheus.NewTimer(metrics.DaemonFetchDuration.WithLabelValues("lnd"))
	defer timer.ObserveDuration()

	if !c.breaker.Allow(daemonKey) {
		metrics.DaemonFetchesTotal.WithLabelValues("lnd", "rejected").Inc()
		return nil, ErrCircuitOpen
	}

	var snapshots []ChannelSnapshot
	err := retry.Do(ctx, maxAttempts, retryBackoff, func() error {
		var fetchErr error
		snapshots, fetchErr = c.listChannels(ctx)
		return fetchErr
	})
	if err != nil {
		c.breaker.RecordFailure(daemonKey)
		metrics.DaemonFetchesTotal.WithLabelValues("lnd", "error").Inc()
		return nil, err
	}
	c.breaker.RecordSuccess(daemonKey)
	metrics.DaemonFetchesTotal.WithLabelValues("lnd", "ok").Inc()
	return snapshots, nil
}

func (c *Client) listChannels(ctx context.Context) ([]ChannelSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RPCTimeout)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	client := lnrpc.NewLightningClient(conn)
	resp, err := client.ListChannels(ctx, &lnrpc.ListChannelsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	snapshots := make([]ChannelSnapshot, 0, len(resp.Channels))
	for _, ch := range resp.Channels {
		if ch == nil {
			continue
		}
		snapshots = append(snapshots, ChannelSnapshot{
			ChanID:            ch.ChanId,
			ChannelPoint:      ch.ChannelPoint,
			RemotePubkey:      ch.RemotePubkey,
			Capacity:          ch.Capacity,
			LocalBalance:      ch.LocalBalance,
			RemoteBalance:     ch.RemoteBalance,
			Active:            ch.Active,
			CommitmentType:    ch.CommitmentType.String(),
			CustomChannelData: ch.CustomChannelData,
		})
	}
	return snapshots, nil
}

// NodeAlias looks up the advertised alias for a node. An empty alias with a
// nil error means the node is known but has not set one.
func (c *Client) NodeAlias(ctx context.Context, pubkey string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RPCTimeout)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	client := lnrpc.NewLightningClient(conn)
	info, err := client.GetNodeInfo(ctx, &lnrpc.NodeInfoRequest{
		PubKey:          pubkey,
		IncludeChannels: false,
	})
	if err != nil {
		return "", fmt.Errorf("get node info: %w", err)
	}
	if node := info.GetNode(); node != nil {
		return node.Alias, nil
	}
	return "", nil
}

// Ping verifies the routing node is reachable. Used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	client := lnrpc.NewLightningClient(conn)
	_, err = client.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	return err
}
