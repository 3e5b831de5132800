package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tapbridge/tapbridge/internal/assets"
	"github.com/tapbridge/tapbridge/internal/ledger"
	"github.com/tapbridge/tapbridge/internal/logging"
	"github.com/tapbridge/tapbridge/internal/pagination"
)

const defaultTransactionLimit = 50

// listAssetsHandler handles GET /api/v1/assets.
//
// A wallet_id query triggers an opportunistic reconciliation before the
// listing so the caller sees trued-up balances; a failed sync is logged and
// reported in the response but never fails the listing.
func (s *Server) listAssetsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	force := c.Query("refresh") == "true"

	var syncOutcome interface{}
	if walletID := c.Query("wallet_id"); walletID != "" {
		outcome := s.engine.SyncBalances(ctx, walletID)
		if len(outcome.Errors) > 0 {
			logging.L(ctx).Warn("opportunistic sync finished with errors",
				"wallet_id", walletID, "errors", len(outcome.Errors))
		} else if len(outcome.Synced) > 0 {
			s.manager.Invalidate()
			force = true
			s.realtimeHub.BroadcastSyncComplete(walletID, len(outcome.Synced), 0)
		}
		syncOutcome = outcome
	}

	rows, err := s.manager.ListAssets(ctx, force)
	if err != nil {
		s.daemonError(c, err)
		return
	}

	resp := gin.H{
		"assets": rows,
		"count":  len(rows),
	}
	if syncOutcome != nil {
		resp["sync"] = syncOutcome
	}
	c.JSON(http.StatusOK, resp)
}

// listChannelAssetsHandler handles GET /api/v1/channel-assets.
func (s *Server) listChannelAssetsHandler(c *gin.Context) {
	force := c.Query("refresh") == "true"

	entries, err := s.manager.ListChannelAssets(c.Request.Context(), force)
	if err != nil {
		s.daemonError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"channel_assets": entries,
		"count":          len(entries),
	})
}

// walletBalancesHandler handles GET /api/v1/wallets/:wallet_id/balances.
func (s *Server) walletBalancesHandler(c *gin.Context) {
	walletID := c.Param("wallet_id")

	balances, err := s.ledgerStore.GetBalances(c.Request.Context(), walletID)
	if err != nil {
		logging.L(c.Request.Context()).Error("balance read failed",
			"wallet_id", walletID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_error",
			"message": "Failed to read balances",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet_id": walletID,
		"balances":  balances,
	})
}

// walletTransactionsHandler handles GET /api/v1/wallets/:wallet_id/transactions.
//
// Pagination is cursor based: the response carries next_cursor while more
// pages remain, and the caller passes it back as the cursor query parameter.
func (s *Server) walletTransactionsHandler(c *gin.Context) {
	walletID := c.Param("wallet_id")

	limit := defaultTransactionLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be an integer between 1 and 500",
			})
			return
		}
		limit = parsed
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "cursor is malformed",
		})
		return
	}

	// Fetch one extra row to learn whether another page exists.
	txns, err := s.ledgerStore.ListTransactions(c.Request.Context(), walletID, limit+1, cursor)
	if err != nil {
		logging.L(c.Request.Context()).Error("transaction read failed",
			"wallet_id", walletID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_error",
			"message": "Failed to read transactions",
		})
		return
	}

	txns, nextCursor, hasMore := pagination.ComputePage(txns, limit, func(txn *ledger.Transaction) (time.Time, string) {
		return txn.CreatedAt, txn.ID
	})

	if assetID := c.Query("asset_id"); assetID != "" {
		filtered := txns[:0]
		for _, txn := range txns {
			if txn.AssetID == assetID {
				filtered = append(filtered, txn)
			}
		}
		txns = filtered
	}
	if txns == nil {
		txns = []*ledger.Transaction{}
	}

	resp := gin.H{
		"wallet_id":    walletID,
		"transactions": txns,
		"has_more":     hasMore,
	}
	if nextCursor != "" {
		resp["next_cursor"] = nextCursor
	}
	c.JSON(http.StatusOK, resp)
}

// syncWalletHandler handles POST /api/v1/wallets/:wallet_id/sync.
func (s *Server) syncWalletHandler(c *gin.Context) {
	walletID := c.Param("wallet_id")

	outcome := s.engine.SyncBalances(c.Request.Context(), walletID)

	if len(outcome.Synced) > 0 {
		// The listing cache predates the adjustments it just triggered.
		s.manager.Invalidate()
		for _, entry := range outcome.Synced {
			s.realtimeHub.BroadcastAssetUpdate(entry.AssetID, entry.NewBalance)
		}
	}
	s.realtimeHub.BroadcastSyncComplete(walletID, len(outcome.Synced), len(outcome.Errors))

	c.JSON(http.StatusOK, gin.H{
		"wallet_id": walletID,
		"outcome":   outcome,
	})
}

// daemonError maps aggregator failures onto HTTP statuses. Unavailable
// daemons are a 503, distinct from "zero assets exist".
func (s *Server) daemonError(c *gin.Context, err error) {
	ctx := c.Request.Context()
	if errors.Is(err, assets.ErrDaemonUnavailable) {
		logging.L(ctx).Warn("daemon unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "daemon_unavailable",
			"message": "Asset daemons are currently unreachable",
		})
		return
	}
	logging.L(ctx).Error("asset listing failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "Failed to list assets",
	})
}
