package repository

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"ArbPull/internal/domain/models"
	xhttp "ArbPull/pkg/http"

	"github.com/shopspring/decimal"
)

// PaperExecutor fills every position in full at its evaluated net edge.
// Nothing leaves the process.
type PaperExecutor struct {
	mu       sync.Mutex
	outcomes map[string]models.ExecutionOutcome
	now      func() time.Time
}

func NewPaperExecutor() *PaperExecutor {
	return &PaperExecutor{outcomes: make(map[string]models.ExecutionOutcome), now: time.Now}
}

func (p *PaperExecutor) Execute(_ context.Context, pos models.SizedPosition) (models.ExecutionOutcome, error) {
	edge := decimal.NewFromFloat(pos.Opportunity.NetEdge)
	out := models.ExecutionOutcome{
		DispatchID:   pos.DispatchID,
		Status:       models.ExecFilled,
		FilledAmount: pos.Amount,
		PnL:          pos.Amount.Mul(edge).Truncate(6),
		ReportedAt:   p.now(),
	}
	p.mu.Lock()
	p.outcomes[pos.DispatchID] = out
	p.mu.Unlock()
	return out, nil
}

// Status reports a past fill. Dispatches from before a restart are unknown
// to the paper book and come back rejected so they leave the pending set.
func (p *PaperExecutor) Status(_ context.Context, dispatchID string) (models.ExecutionOutcome, error) {
	p.mu.Lock()
	out, ok := p.outcomes[dispatchID]
	p.mu.Unlock()
	if ok {
		return out, nil
	}
	return models.ExecutionOutcome{
		DispatchID: dispatchID,
		Status:     models.ExecRejected,
		PnL:        decimal.Zero,
		ReportedAt: p.now(),
	}, nil
}

type executeLeg struct {
	Chain string  `json:"chain"`
	Venue string  `json:"venue"`
	Price float64 `json:"price"`
}

type executeRequest struct {
	DispatchID    string          `json:"dispatch_id"`
	OpportunityID string          `json:"opportunity_id"`
	Pair          string          `json:"pair"`
	Class         string          `json:"class"`
	Amount        decimal.Decimal `json:"amount"`
	NetEdge       float64         `json:"net_edge"`
	Buy           executeLeg      `json:"buy"`
	Sell          executeLeg      `json:"sell"`
}

type executeResponse struct {
	DispatchID   string          `json:"dispatch_id"`
	Status       string          `json:"status"`
	FilledAmount decimal.Decimal `json:"filled_amount"`
	PnL          decimal.Decimal `json:"pnl"`
	ReportedAt   time.Time       `json:"reported_at"`
}

// HTTPExecutor talks to an external executor service:
// POST {base}/execute and GET {base}/dispatches/{id}.
type HTTPExecutor struct {
	client *xhttp.Client
	base   string
	now    func() time.Time
}

func NewHTTPExecutor(client *xhttp.Client, baseURL string) *HTTPExecutor {
	return &HTTPExecutor{client: client, base: strings.TrimRight(baseURL, "/"), now: time.Now}
}

func (h *HTTPExecutor) Execute(ctx context.Context, pos models.SizedPosition) (models.ExecutionOutcome, error) {
	opp := pos.Opportunity
	req := executeRequest{
		DispatchID:    pos.DispatchID,
		OpportunityID: opp.ID,
		Pair:          opp.Pair,
		Class:         string(pos.Class),
		Amount:        pos.Amount,
		NetEdge:       opp.NetEdge,
		Buy:           executeLeg{Chain: string(opp.Buy.Chain), Venue: opp.Buy.Venue, Price: opp.Buy.Price},
		Sell:          executeLeg{Chain: string(opp.Sell.Chain), Venue: opp.Sell.Venue, Price: opp.Sell.Price},
	}
	var resp executeResponse
	err := h.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    h.base + "/execute",
		Body:   req,
	}, &resp)
	if err != nil {
		return models.ExecutionOutcome{}, fmt.Errorf("execute %s: %w", pos.DispatchID, err)
	}
	return h.outcome(pos.DispatchID, resp)
}

func (h *HTTPExecutor) Status(ctx context.Context, dispatchID string) (models.ExecutionOutcome, error) {
	var resp executeResponse
	err := h.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    h.base + "/dispatches/" + url.PathEscape(dispatchID),
	}, &resp)
	if err != nil {
		return models.ExecutionOutcome{}, fmt.Errorf("status %s: %w", dispatchID, err)
	}
	return h.outcome(dispatchID, resp)
}

func (h *HTTPExecutor) outcome(dispatchID string, resp executeResponse) (models.ExecutionOutcome, error) {
	if resp.DispatchID != "" && resp.DispatchID != dispatchID {
		return models.ExecutionOutcome{}, fmt.Errorf("executor answered for %s, asked %s", resp.DispatchID, dispatchID)
	}
	status := models.ExecutionStatus(resp.Status)
	switch status {
	case models.ExecFilled, models.ExecPartiallyFilled, models.ExecRejected,
		models.ExecFailed, models.ExecPending, models.ExecUnconfirmed:
	default:
		return models.ExecutionOutcome{}, fmt.Errorf("executor status %q for %s", resp.Status, dispatchID)
	}
	at := resp.ReportedAt
	if at.IsZero() {
		at = h.now()
	}
	return models.ExecutionOutcome{
		DispatchID:   dispatchID,
		Status:       status,
		FilledAmount: resp.FilledAmount,
		PnL:          resp.PnL,
		ReportedAt:   at,
	}, nil
}
