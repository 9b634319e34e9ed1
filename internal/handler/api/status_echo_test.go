package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ArbPull/internal/domain/models"
	domrepo "ArbPull/internal/domain/repository"
	"ArbPull/internal/service/phase"
	"ArbPull/internal/service/status"
	xhttp "ArbPull/pkg/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEndpoints struct {
	eps     []models.Endpoint
	healthy int
}

func (f fakeEndpoints) Snapshot() []models.Endpoint { return f.eps }
func (f fakeEndpoints) Summary() (int, int)         { return f.healthy, len(f.eps) }

type fakeHistory struct {
	recs      []*models.TickRecord
	err       error
	lastLimit int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]*models.TickRecord, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.recs) {
		return f.recs[:limit], nil
	}
	return f.recs, nil
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	srv     *xhttp.Server
	board   *status.Board
	history *fakeHistory
	eps     *fakeEndpoints
}

func newFixture(t *testing.T, withHistory bool) *fixture {
	t.Helper()
	f := &fixture{
		board: status.NewBoard(),
		eps: &fakeEndpoints{healthy: 2, eps: []models.Endpoint{
			{Chain: "base", URL: "https://base-a.example"},
			{Chain: "base", URL: "https://base-b.example"},
			{Chain: "arbitrum", URL: "https://arb.example"},
		}},
		history: &fakeHistory{},
	}
	var history domrepo.TickHistory
	if withHistory {
		history = f.history
	}
	h := NewStatusEchoHandler(nil, f.board, f.eps, phase.NewMachine(), history)
	f.srv = xhttp.NewServer(h, nil, xhttp.WithRegistry(prometheus.NewRegistry()))
	return f
}

func (f *fixture) get(t *testing.T, path string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func publishSnapshot(t *testing.T, b *status.Board) *models.Snapshot {
	t.Helper()
	tick := models.NewTickRecord(5, "run-a", time.Unix(1_700_000_000, 0), models.PhaseReplicate)
	require.NoError(t, tick.Finalize(tick.StartedAt.Add(time.Second), models.TickCompleted))
	snap := &models.Snapshot{
		TickCount:   5,
		Treasury:    models.NewTreasuryState(decimal.NewFromInt(640)),
		Phase:       models.PhaseReplicate,
		PeerCount:   1,
		LatestTick:  tick,
		PublishedAt: time.Unix(1_700_000_001, 0).UTC(),
	}
	require.NoError(t, b.Publish(context.Background(), snap))
	return snap
}

func TestStatusBeforeFirstTick(t *testing.T) {
	f := newFixture(t, true)

	code, _ := f.get(t, "/status")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, _ = f.get(t, "/ticks/latest")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, env := f.get(t, "/phase")
	require.Equal(t, http.StatusOK, code)
	var ph phaseResponse
	require.NoError(t, json.Unmarshal(env.Data, &ph))
	assert.Equal(t, models.PhaseBootstrap, ph.Phase)
	assert.True(t, ph.UnlockBalanceUSD.Equal(decimal.NewFromInt(500)))
	assert.False(t, ph.Policy.Unlocked(models.ClassAdvanced))
}

func TestStatusAfterTick(t *testing.T) {
	f := newFixture(t, true)
	publishSnapshot(t, f.board)

	code, env := f.get(t, "/status")
	require.Equal(t, http.StatusOK, code)
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, uint64(5), snap.TickCount)
	assert.True(t, snap.Treasury.Balance.Equal(decimal.NewFromInt(640)))

	code, env = f.get(t, "/ticks/latest")
	require.Equal(t, http.StatusOK, code)
	var tick models.TickRecord
	require.NoError(t, json.Unmarshal(env.Data, &tick))
	assert.Equal(t, uint64(5), tick.Seq)
	assert.Equal(t, models.TickCompleted, tick.Status)

	code, env = f.get(t, "/phase")
	require.Equal(t, http.StatusOK, code)
	var ph phaseResponse
	require.NoError(t, json.Unmarshal(env.Data, &ph))
	assert.Equal(t, models.PhaseReplicate, ph.Phase)
	assert.Equal(t, 0.3, ph.Policy.Weights[models.ClassAdvanced])
	assert.Equal(t, 1, ph.PeerCount)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	publishSnapshot(t, f.board)

	code, env := f.get(t, "/health")
	require.Equal(t, http.StatusOK, code)
	var hr healthResponse
	require.NoError(t, json.Unmarshal(env.Data, &hr))
	assert.Equal(t, "ok", hr.Status)
	assert.Equal(t, 2, hr.HealthyEndpoints)
	assert.Equal(t, 3, hr.TotalEndpoints)
	assert.Equal(t, uint64(5), hr.TickCount)

	f.eps.healthy = 0
	code, env = f.get(t, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	require.NoError(t, json.Unmarshal(env.Data, &hr))
	assert.Equal(t, "degraded", hr.Status)
}

func TestTicks(t *testing.T) {
	f := newFixture(t, true)
	for i := uint64(3); i >= 1; i-- {
		f.history.recs = append(f.history.recs, models.NewTickRecord(i, "run-a", time.Now(), models.PhaseBootstrap))
	}

	code, env := f.get(t, "/ticks?limit=2")
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Rows  []models.TickRecord `json:"rows"`
		Total int64               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(2), list.Total)
	assert.Equal(t, uint64(3), list.Rows[0].Seq)

	_, _ = f.get(t, "/ticks")
	assert.Equal(t, 20, f.history.lastLimit, "default limit")

	code, env = f.get(t, "/ticks?limit=9000")
	assert.Equal(t, http.StatusBadRequest, code)
	var verrs []xhttp.ValidationError
	require.NoError(t, json.Unmarshal(env.Data, &verrs))
	require.Len(t, verrs, 1)
	assert.Equal(t, "ERR_LTE", verrs[0].Code)

	f.history.err = errors.New("disk gone")
	code, _ = f.get(t, "/ticks")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestTicksWithoutHistory(t *testing.T) {
	f := newFixture(t, false)
	code, env := f.get(t, "/ticks")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, http.StatusNotFound, env.Status)
}

func TestEndpoints(t *testing.T) {
	f := newFixture(t, false)

	code, env := f.get(t, "/endpoints")
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Rows  []models.Endpoint `json:"rows"`
		Total int64             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(3), list.Total)

	code, env = f.get(t, "/endpoints?chain=base")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(2), list.Total)

	code, _ = f.get(t, "/endpoints?chain=solana")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t, false)
	_, _ = f.get(t, "/health")

	rec := httptest.NewRecorder()
	f.srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `arbpull_http_requests_total{class="2xx",method="GET",route="/health"} 1`)
}
