package assets

import (
	"encoding/json"
	"fmt"

	"github.com/tapbridge/tapbridge/internal/lndclient"
)

// Custom channel data arrives as UTF-8 JSON in one of two schemas, depending
// on the asset daemon version that funded the channel:
//
//   - current: a funding_assets list with per-asset genesis details, plus
//     local_assets/remote_assets lists keyed by asset_id carrying balances
//   - legacy: an assets list where each item nests an asset_utxo, with
//     asset_id and name either directly on the utxo or one level deeper
//     under asset_genesis
//
// The discriminant field picks the parser; unknown shapes yield no entries.

type payloadProbe struct {
	FundingAssets json.RawMessage `json:"funding_assets"`
	Assets        json.RawMessage `json:"assets"`
}

type currentPayload struct {
	FundingAssets []fundingAsset `json:"funding_assets"`
	LocalAssets   []assetAmount  `json:"local_assets"`
	RemoteAssets  []assetAmount  `json:"remote_assets"`
	Capacity      int64          `json:"capacity"`
}

type fundingAsset struct {
	AssetGenesis   assetGenesis `json:"asset_genesis"`
	DecimalDisplay int          `json:"decimal_display"`
}

type assetGenesis struct {
	AssetID string `json:"asset_id"`
	Name    string `json:"name"`
}

type assetAmount struct {
	AssetID string `json:"asset_id"`
	Amount  int64  `json:"amount"`
}

type legacyPayload struct {
	Assets []legacyAsset `json:"assets"`
}

type legacyAsset struct {
	AssetUtxo      legacyUtxo `json:"asset_utxo"`
	Capacity       int64      `json:"capacity"`
	LocalBalance   int64      `json:"local_balance"`
	RemoteBalance  int64      `json:"remote_balance"`
	DecimalDisplay int        `json:"decimal_display"`
}

type legacyUtxo struct {
	AssetID      string       `json:"asset_id"`
	Name         string       `json:"name"`
	AssetGenesis assetGenesis `json:"asset_genesis"`
}

// parseChannelPayload decodes one channel's custom channel data into
// ChannelAsset entries. A channel without a payload yields no entries and no
// error. Entries that fail to resolve an asset_id are dropped.
func parseChannelPayload(ch lndclient.ChannelSnapshot) ([]ChannelAsset, error) {
	if len(ch.CustomChannelData) == 0 {
		return nil, nil
	}

	var probe payloadProbe
	if err := json.Unmarshal(ch.CustomChannelData, &probe); err != nil {
		return nil, fmt.Errorf("decode channel payload: %w", err)
	}

	switch {
	case probe.FundingAssets != nil:
		return parseCurrentPayload(ch)
	case probe.Assets != nil:
		return parseLegacyPayload(ch)
	default:
		return nil, nil
	}
}

func parseCurrentPayload(ch lndclient.ChannelSnapshot) ([]ChannelAsset, error) {
	var payload currentPayload
	if err := json.Unmarshal(ch.CustomChannelData, &payload); err != nil {
		return nil, fmt.Errorf("decode funding_assets payload: %w", err)
	}

	entries := make([]ChannelAsset, 0, len(payload.FundingAssets))
	for _, asset := range payload.FundingAssets {
		assetID := asset.AssetGenesis.AssetID
		if assetID == "" {
			continue
		}
		entries = append(entries, ChannelAsset{
			AssetID:        assetID,
			Name:           asset.AssetGenesis.Name,
			ChannelID:      formatChannelID(ch.ChanID),
			ChannelPoint:   ch.ChannelPoint,
			RemotePubkey:   ch.RemotePubkey,
			Capacity:       payload.Capacity,
			LocalBalance:   lookupAmount(payload.LocalAssets, assetID),
			RemoteBalance:  lookupAmount(payload.RemoteAssets, assetID),
			CommitmentType: ch.CommitmentType,
			Active:         ch.Active,
			DecimalDisplay: asset.DecimalDisplay,
		})
	}
	return entries, nil
}

func parseLegacyPayload(ch lndclient.ChannelSnapshot) ([]ChannelAsset, error) {
	var payload legacyPayload
	if err := json.Unmarshal(ch.CustomChannelData, &payload); err != nil {
		return nil, fmt.Errorf("decode assets payload: %w", err)
	}

	entries := make([]ChannelAsset, 0, len(payload.Assets))
	for _, asset := range payload.Assets {
		// asset_id and name live either on the utxo directly or nested
		// under asset_genesis, depending on daemon version.
		assetID := asset.AssetUtxo.AssetID
		if assetID == "" {
			assetID = asset.AssetUtxo.AssetGenesis.AssetID
		}
		if assetID == "" {
			continue
		}
		name := asset.AssetUtxo.Name
		if name == "" {
			name = asset.AssetUtxo.AssetGenesis.Name
		}

		entries = append(entries, ChannelAsset{
			AssetID:        assetID,
			Name:           name,
			ChannelID:      formatChannelID(ch.ChanID),
			ChannelPoint:   ch.ChannelPoint,
			RemotePubkey:   ch.RemotePubkey,
			Capacity:       asset.Capacity,
			LocalBalance:   asset.LocalBalance,
			RemoteBalance:  asset.RemoteBalance,
			CommitmentType: ch.CommitmentType,
			Active:         ch.Active,
			DecimalDisplay: asset.DecimalDisplay,
		})
	}
	return entries, nil
}

func lookupAmount(amounts []assetAmount, assetID string) int64 {
	for _, a := range amounts {
		if a.AssetID == assetID {
			return a.Amount
		}
	}
	return 0
}

func formatChannelID(id uint64) string {
	return fmt.Sprintf("%d", id)
}
