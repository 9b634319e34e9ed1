package api

import (
	"net/http"
	"time"

	"ArbPull/internal/domain/models"
	domrepo "ArbPull/internal/domain/repository"
	"ArbPull/internal/service/phase"
	xhttp "ArbPull/pkg/http"
	xlogger "ArbPull/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// SnapshotSource serves the last published status snapshot.
type SnapshotSource interface {
	Latest() *models.Snapshot
}

// EndpointView is the read side of the endpoint tracker.
type EndpointView interface {
	Snapshot() []models.Endpoint
	Summary() (healthy, total int)
}

// PhaseGate exposes the thresholds of the phase machine.
type PhaseGate interface {
	UnlockBalance() decimal.Decimal
	MinPeers() int
}

type ticksQuery struct {
	Limit int `query:"limit" default:"20" validate:"gte=1,lte=500"`
}

type endpointsQuery struct {
	Chain string `query:"chain"`
}

type healthResponse struct {
	Status           string    `json:"status"`
	HealthyEndpoints int       `json:"healthy_endpoints"`
	TotalEndpoints   int       `json:"total_endpoints"`
	TickCount        uint64    `json:"tick_count"`
	LastTickAt       time.Time `json:"last_tick_at,omitempty"`
}

type phaseResponse struct {
	Phase            models.Phase    `json:"phase"`
	Policy           phase.Policy    `json:"policy"`
	Balance          decimal.Decimal `json:"balance"`
	PeerCount        int             `json:"peer_count"`
	UnlockBalanceUSD decimal.Decimal `json:"unlock_balance_usd"`
	MinPeers         int             `json:"min_peers"`
}

// StatusEchoHandler is the read-only status surface of the engine.
type StatusEchoHandler struct {
	logger    *xlogger.Logger
	snapshots SnapshotSource
	endpoints EndpointView
	gate      PhaseGate
	history   domrepo.TickHistory
}

// NewStatusEchoHandler builds the handler. history may be nil when the
// recorder backend keeps no queryable history.
func NewStatusEchoHandler(logger *xlogger.Logger, snapshots SnapshotSource, endpoints EndpointView, gate PhaseGate, history domrepo.TickHistory) *StatusEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &StatusEchoHandler{
		logger:    logger,
		snapshots: snapshots,
		endpoints: endpoints,
		gate:      gate,
		history:   history,
	}
}

func (h *StatusEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/status", h.Status)
	e.GET("/phase", h.Phase)
	e.GET("/ticks/latest", h.LatestTick)
	e.GET("/ticks", h.Ticks)
	e.GET("/endpoints", h.Endpoints)
}

// Health answers 200 while at least one endpoint is usable, 503 otherwise.
func (h *StatusEchoHandler) Health(c echo.Context) error {
	healthy, total := h.endpoints.Summary()
	res := healthResponse{Status: "ok", HealthyEndpoints: healthy, TotalEndpoints: total}
	if snap := h.snapshots.Latest(); snap != nil {
		res.TickCount = snap.TickCount
		res.LastTickAt = snap.PublishedAt
	}
	if healthy == 0 {
		res.Status = "degraded"
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *StatusEchoHandler) Status(c echo.Context) error {
	snap := h.snapshots.Latest()
	if snap == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("no tick has completed yet"))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, snap)
}

func (h *StatusEchoHandler) Phase(c echo.Context) error {
	res := phaseResponse{
		Phase:            models.PhaseBootstrap,
		Balance:          decimal.Zero,
		UnlockBalanceUSD: h.gate.UnlockBalance(),
		MinPeers:         h.gate.MinPeers(),
	}
	if snap := h.snapshots.Latest(); snap != nil {
		res.Phase = snap.Phase
		res.Balance = snap.Treasury.Balance
		res.PeerCount = snap.PeerCount
	}
	res.Policy = phase.PolicyFor(res.Phase)
	return xhttp.SuccessResponse(c, res)
}

func (h *StatusEchoHandler) LatestTick(c echo.Context) error {
	snap := h.snapshots.Latest()
	if snap == nil || snap.LatestTick == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("no tick has completed yet"))
	}
	return xhttp.SuccessResponse(c, snap.LatestTick)
}

// Ticks lists recent tick records, newest first.
func (h *StatusEchoHandler) Ticks(c echo.Context) error {
	req := &ticksQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.history == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("tick history is not kept by this recorder"))
	}
	recs, err := h.history.Recent(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("tick history error", xlogger.Int("limit", req.Limit), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("tick history unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}

// Endpoints returns the tracker view, optionally for one chain.
func (h *StatusEchoHandler) Endpoints(c echo.Context) error {
	req := &endpointsQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	all := h.endpoints.Snapshot()
	if req.Chain == "" {
		return xhttp.ListResponse(c, all, int64(len(all)))
	}

	known := false
	out := make([]models.Endpoint, 0, len(all))
	for _, ep := range all {
		if string(ep.Chain) != req.Chain {
			continue
		}
		known = true
		out = append(out, ep)
	}
	if !known {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("chain", "unknown chain %q", req.Chain))
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}
