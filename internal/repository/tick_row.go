package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"ArbPull/internal/domain/models"

	"github.com/shopspring/decimal"
)

// tickRow is the flattened audit row shared by the SQL recorders. The full
// record travels in payload so history reads can rebuild it.
type tickRow struct {
	Seq              uint64
	RunID            string
	StartedAt        time.Time
	FinishedAt       time.Time
	Status           string
	Stage            string
	Phase            string
	PeerCount        int
	Considered       int
	Accepted         int
	Dispatched       int
	Errors           int
	RecognizedProfit decimal.Decimal
	Disbursed        decimal.Decimal
	Payload          string
}

func newTickRow(rec *models.TickRecord) (tickRow, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return tickRow{}, fmt.Errorf("marshal tick %d: %w", rec.Seq, err)
	}
	disbursed := decimal.Zero
	if d := rec.Disbursement; d != nil && d.Confirmed {
		disbursed = d.Amount
	}
	return tickRow{
		Seq:              rec.Seq,
		RunID:            rec.RunID,
		StartedAt:        rec.StartedAt.UTC(),
		FinishedAt:       rec.FinishedAt.UTC(),
		Status:           string(rec.Status),
		Stage:            string(rec.Stage),
		Phase:            string(rec.Phase),
		PeerCount:        rec.PeerCount,
		Considered:       len(rec.Considered),
		Accepted:         len(rec.Accepted),
		Dispatched:       len(rec.Dispatches),
		Errors:           len(rec.Errors),
		RecognizedProfit: rec.RecognizedProfit,
		Disbursed:        disbursed,
		Payload:          string(payload),
	}, nil
}

func decodeTickPayload(payload string) (*models.TickRecord, error) {
	var rec models.TickRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decode tick payload: %w", err)
	}
	return &rec, nil
}
