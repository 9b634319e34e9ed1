package usecase

import (
	"sort"
	"strings"
	"time"

	"ArbPull/internal/domain/models"
)

// OpportunityScanner turns one tick's quotes into cross-venue discrepancies.
type OpportunityScanner struct {
	staleness    time.Duration
	conservative map[string]bool
}

func NewOpportunityScanner(staleness time.Duration, conservativePairs []string) *OpportunityScanner {
	cp := make(map[string]bool, len(conservativePairs))
	for _, p := range conservativePairs {
		cp[strings.ToUpper(p)] = true
	}
	return &OpportunityScanner{staleness: staleness, conservative: cp}
}

// Scan keeps the newest fresh quote per venue and pair, then pairs the
// cheapest venue (buy) with the most expensive (sell) for every pair quoted
// by at least two venues. Work is linear in the number of quotes.
func (s *OpportunityScanner) Scan(quotes []models.Quote, now time.Time) []models.Opportunity {
	latest := make(map[string]models.Quote, len(quotes))
	for _, q := range quotes {
		if q.Price <= 0 || now.Sub(q.CollectedAt) > s.staleness {
			continue
		}
		key := q.Target().String()
		if prev, ok := latest[key]; ok && !q.CollectedAt.After(prev.CollectedAt) {
			continue
		}
		latest[key] = q
	}

	byPair := make(map[string][]models.Quote)
	for _, q := range latest {
		byPair[q.Pair] = append(byPair[q.Pair], q)
	}

	var out []models.Opportunity
	for pair, qs := range byPair {
		if len(qs) < 2 {
			continue
		}
		buy, sell := qs[0], qs[0]
		for _, q := range qs[1:] {
			if q.Price < buy.Price || (q.Price == buy.Price && q.Target().VenueKey() < buy.Target().VenueKey()) {
				buy = q
			}
			if q.Price > sell.Price || (q.Price == sell.Price && q.Target().VenueKey() < sell.Target().VenueKey()) {
				sell = q
			}
		}
		if sell.Price <= buy.Price {
			continue
		}
		out = append(out, models.Opportunity{
			ID:        opportunityID(pair, buy, sell),
			Pair:      pair,
			Class:     s.classify(pair, buy, sell),
			Buy:       buy,
			Sell:      sell,
			GrossEdge: (sell.Price - buy.Price) / buy.Price,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].GrossEdge != out[j].GrossEdge {
			return out[i].GrossEdge > out[j].GrossEdge
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *OpportunityScanner) classify(pair string, buy, sell models.Quote) models.StrategyClass {
	switch {
	case s.conservative[strings.ToUpper(pair)]:
		return models.ClassConservative
	case buy.Chain == sell.Chain:
		return models.ClassOpportunistic
	default:
		return models.ClassAdvanced
	}
}

func opportunityID(pair string, buy, sell models.Quote) string {
	return pair + "|" + buy.Target().VenueKey() + "|" + sell.Target().VenueKey()
}
