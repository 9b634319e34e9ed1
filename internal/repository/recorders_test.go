package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ArbPull/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishedTick(seq uint64, started time.Time) *models.TickRecord {
	rec := models.NewTickRecord(seq, "run-a", started, models.PhaseBootstrap)
	rec.EndpointsUsed = []string{"https://rpc.example/base"}
	rec.Accepted = []models.Opportunity{{ID: "opp-1", Pair: "WETH/USDC", NetEdge: 0.004}}
	rec.RecognizedProfit = decimal.RequireFromString("0.12")
	rec.Disbursement = &models.DisbursementResult{
		Amount:    decimal.RequireFromString("0.75"),
		Confirmed: true,
		TxHash:    "0xabc",
	}
	_ = rec.Finalize(started.Add(2*time.Second), models.TickCompleted)
	return rec
}

func TestNewTickRow(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	row, err := newTickRow(finishedTick(7, started))
	require.NoError(t, err)

	assert.Equal(t, uint64(7), row.Seq)
	assert.Equal(t, "completed", row.Status)
	assert.Equal(t, 1, row.Accepted)
	assert.True(t, row.Disbursed.Equal(decimal.RequireFromString("0.75")))

	back, err := decodeTickPayload(row.Payload)
	require.NoError(t, err)
	assert.Equal(t, "opp-1", back.Accepted[0].ID)
	assert.Equal(t, "0xabc", back.Disbursement.TxHash)

	unconfirmed := finishedTick(8, started)
	unconfirmed.Disbursement.Confirmed = false
	row, err = newTickRow(unconfirmed)
	require.NoError(t, err)
	assert.True(t, row.Disbursed.IsZero())
}

func TestSQLiteTickRecorder(t *testing.T) {
	ctx := context.Background()
	rec, err := NewSQLiteTickRecorder(ctx, filepath.Join(t.TempDir(), "audit", "ticks.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, rec.Record(ctx, finishedTick(i, base.Add(time.Duration(i)*time.Minute))))
	}
	dup := finishedTick(2, base)
	dup.Accepted = nil
	require.NoError(t, rec.Record(ctx, dup), "re-recording is ignored")

	recent, err := rec.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(3), recent[0].Seq)
	assert.Equal(t, uint64(2), recent[1].Seq)
	assert.Len(t, recent[1].Accepted, 1, "first write wins")

	all, err := rec.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

type publishCall struct {
	topic string
	key   string
	value interface{}
}

type fakeTopicPublisher struct {
	calls []publishCall
	err   error
}

func (f *fakeTopicPublisher) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, publishCall{topic: topic, key: string(key), value: value})
	return nil
}

func TestKafkaPublishers(t *testing.T) {
	ctx := context.Background()
	pub := &fakeTopicPublisher{}

	rec := finishedTick(4, time.Now())
	require.NoError(t, NewKafkaTickRecorder(pub, "arbpull.ticks").Record(ctx, rec))
	require.NoError(t, NewKafkaSnapshotPublisher(pub, "arbpull.snapshots").Publish(ctx, &models.Snapshot{TickCount: 12}))

	require.Len(t, pub.calls, 2)
	assert.Equal(t, publishCall{topic: "arbpull.ticks", key: "run-a", value: rec}, pub.calls[0])
	assert.Equal(t, "arbpull.snapshots", pub.calls[1].topic)
	assert.Equal(t, "12", pub.calls[1].key)

	pub.err = errors.New("broker down")
	err := NewKafkaTickRecorder(pub, "arbpull.ticks").Record(ctx, rec)
	assert.ErrorContains(t, err, "publish tick 4")
}
