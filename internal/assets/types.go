package assets

// ChannelAsset is one (channel, asset) pair parsed from a channel's custom
// channel data. LocalBalance is this channel's share of the asset.
type ChannelAsset struct {
	AssetID        string `json:"asset_id"`
	Name           string `json:"name"`
	ChannelID      string `json:"channel_id"`
	ChannelPoint   string `json:"channel_point"`
	RemotePubkey   string `json:"remote_pubkey"`
	PeerAlias      string `json:"peer_alias,omitempty"`
	Capacity       int64  `json:"capacity"`
	LocalBalance   int64  `json:"local_balance"`
	RemoteBalance  int64  `json:"remote_balance"`
	CommitmentType string `json:"commitment_type"`
	Active         bool   `json:"active"`
	DecimalDisplay int    `json:"decimal_display"`
}

// ChannelInfo is the channel sub-object embedded in each aggregated row.
type ChannelInfo struct {
	ChannelPoint  string `json:"channel_point"`
	Capacity      int64  `json:"capacity"`
	LocalBalance  int64  `json:"local_balance"`
	RemoteBalance int64  `json:"remote_balance"`
	PeerPubkey    string `json:"peer_pubkey"`
	PeerAlias     string `json:"peer_alias"`
	ChannelID     string `json:"channel_id"`
	Active        bool   `json:"active"`
}

// TypeChannelOnly marks aggregated rows synthesized for assets observed in a
// channel but absent from the daemon's global listing.
const TypeChannelOnly = "CHANNEL_ONLY"

// AggregatedAsset is one row of the merged per-(asset, channel) view.
// Amount is overridden to the channel's local balance; the daemon's global
// holding is not reported here.
type AggregatedAsset struct {
	AssetID        string       `json:"asset_id"`
	Name           string       `json:"name"`
	Type           string       `json:"type"`
	Amount         int64        `json:"amount"`
	GenesisPoint   string       `json:"genesis_point,omitempty"`
	MetaHash       string       `json:"meta_hash,omitempty"`
	Version        string       `json:"version,omitempty"`
	IsSpent        bool         `json:"is_spent,omitempty"`
	ScriptKey      string       `json:"script_key,omitempty"`
	DecimalDisplay int          `json:"decimal_display"`
	ChannelInfo    *ChannelInfo `json:"channel_info"`
}
