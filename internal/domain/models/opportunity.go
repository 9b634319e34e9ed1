package models

// StrategyClass is the closed set of strategy classes the phase policies weight.
type StrategyClass string

const (
	ClassConservative  StrategyClass = "conservative"
	ClassOpportunistic StrategyClass = "opportunistic"
	ClassAdvanced      StrategyClass = "advanced"
)

// StrategyClasses lists every class in policy-table order.
var StrategyClasses = []StrategyClass{ClassConservative, ClassOpportunistic, ClassAdvanced}

// Opportunity is a cross-venue price discrepancy for one pair within a tick.
// Edges and costs are fractions of notional.
type Opportunity struct {
	ID        string        `json:"id"`
	Pair      string        `json:"pair"`
	Class     StrategyClass `json:"class"`
	Buy       Quote         `json:"buy"`
	Sell      Quote         `json:"sell"`
	GrossEdge float64       `json:"gross_edge"`
	GasCost   float64       `json:"gas_cost"`
	Slippage  float64       `json:"slippage"`
	NetEdge   float64       `json:"net_edge"`
}

// Chains returns the distinct chains the opportunity touches.
func (o Opportunity) Chains() []Chain {
	if o.Buy.Chain == o.Sell.Chain {
		return []Chain{o.Buy.Chain}
	}
	return []Chain{o.Buy.Chain, o.Sell.Chain}
}

// Decision is the evaluator verdict.
type Decision string

const (
	Accept Decision = "accept"
	Reject Decision = "reject"
)

// Evaluation is the evaluator output for one opportunity.
type Evaluation struct {
	Opportunity Opportunity `json:"opportunity"`
	Decision    Decision    `json:"decision"`
	Reason      string      `json:"reason,omitempty"`
}

// Accepted reports whether the opportunity passed the net-edge threshold.
func (e Evaluation) Accepted() bool { return e.Decision == Accept }
