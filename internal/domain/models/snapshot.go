package models

import "time"

// Snapshot is the immutable status view published after every Settle.
type Snapshot struct {
	TickCount        uint64               `json:"tick_count"`
	Treasury         TreasuryState        `json:"treasury"`
	Phase            Phase                `json:"phase"`
	PeerCount        int                  `json:"peer_count"`
	LatestTick       *TickRecord          `json:"latest_tick,omitempty"`
	Endpoints        []Endpoint           `json:"endpoints"`
	HealthyEndpoints int                  `json:"healthy_endpoints"`
	TotalEndpoints   int                  `json:"total_endpoints"`
	ChainErrors      map[Chain]ErrorClass `json:"chain_errors,omitempty"`
	PublishedAt      time.Time            `json:"published_at"`
}
