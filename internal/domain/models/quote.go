package models

import "time"

// Target is a single (chain, venue, pair) read the collector performs each tick.
type Target struct {
	Chain Chain  `json:"chain"`
	Venue string `json:"venue"`
	Pair  string `json:"pair"`
}

// VenueKey identifies the venue side of a quote.
func (t Target) VenueKey() string {
	return string(t.Chain) + ":" + t.Venue
}

func (t Target) String() string {
	return t.VenueKey() + "/" + t.Pair
}

// Quote is an immutable venue price observed during one tick.
type Quote struct {
	Chain        Chain     `json:"chain"`
	Venue        string    `json:"venue"`
	Pair         string    `json:"pair"`
	Price        float64   `json:"price"`
	LiquidityUSD float64   `json:"liquidity_usd"` // 0 when depth is unknown
	CollectedAt  time.Time `json:"collected_at"`
	Endpoint     string    `json:"endpoint"`
}

// Target returns the read this quote answers.
func (q Quote) Target() Target {
	return Target{Chain: q.Chain, Venue: q.Venue, Pair: q.Pair}
}

// FeeEstimate is the fee level of a chain read during Collect.
type FeeEstimate struct {
	Chain        Chain     `json:"chain"`
	GasPriceGwei float64   `json:"gas_price_gwei"`
	NativeUSD    float64   `json:"native_usd"`
	CollectedAt  time.Time `json:"collected_at"`
	Endpoint     string    `json:"endpoint"`
}

// FeeBook maps a chain to its fee level for the current tick.
type FeeBook map[Chain]FeeEstimate

// ReadKind names what a collector read was for.
type ReadKind string

const (
	ReadQuote  ReadKind = "quote"
	ReadFee    ReadKind = "fee"
	ReadOracle ReadKind = "oracle"
)

// MissingRead is a read that produced no value this tick.
type MissingRead struct {
	Kind   ReadKind `json:"kind"`
	Target Target   `json:"target"`
	Reason string   `json:"reason"`
}

// Collection is the barrier-joined output of the Collect stage.
type Collection struct {
	Quotes         []Quote       `json:"quotes"`
	Fees           FeeBook       `json:"fees"`
	Missing        []MissingRead `json:"missing,omitempty"`
	DegradedChains []Chain       `json:"degraded_chains,omitempty"`
	EndpointsUsed  []string      `json:"endpoints_used"`
}
