package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ArbPull/internal/domain/models"
	pkgch "ArbPull/pkg/clickhouse"
	applogger "ArbPull/pkg/logger"
)

// ClickHouseTickSchema returns the idempotent DDL for the tick audit table.
func ClickHouseTickSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.tick_records (
			run_id            String,
			seq               UInt64,
			started_at        DateTime64(3, 'UTC'),
			finished_at       DateTime64(3, 'UTC'),
			status            LowCardinality(String),
			stage             LowCardinality(String),
			phase             LowCardinality(String),
			peer_count        UInt32,
			considered        UInt32,
			accepted          UInt32,
			dispatched        UInt32,
			errors            UInt32,
			recognized_profit Decimal(38, 18),
			disbursed         Decimal(38, 18),
			payload           String
		) ENGINE = ReplacingMergeTree
		ORDER BY (run_id, seq)`, database),
	}
}

// CHTickRecorder appends finalized ticks to ClickHouse.
type CHTickRecorder struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHTickRecorder(ch *pkgch.Client, database string, l *applogger.Logger) *CHTickRecorder {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHTickRecorder{db: ch.DB(), table: database + ".tick_records", l: l}
}

func (s *CHTickRecorder) Record(ctx context.Context, rec *models.TickRecord) error {
	start := time.Now()
	row, err := newTickRow(rec)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s
		(run_id, seq, started_at, finished_at, status, stage, phase, peer_count,
		 considered, accepted, dispatched, errors, recognized_profit, disbursed, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	_, err = s.db.ExecContext(ctx, q,
		row.RunID, row.Seq, row.StartedAt, row.FinishedAt,
		row.Status, row.Stage, row.Phase, uint32(row.PeerCount),
		uint32(row.Considered), uint32(row.Accepted), uint32(row.Dispatched), uint32(row.Errors),
		row.RecognizedProfit, row.Disbursed, row.Payload,
	)
	if err != nil {
		s.l.Error("clickhouse record tick error",
			applogger.String("table", s.table),
			applogger.Uint64("tick", rec.Seq),
			applogger.Error(err),
		)
		return fmt.Errorf("insert tick %d: %w", rec.Seq, err)
	}
	s.l.Debug("clickhouse record tick ok",
		applogger.Uint64("tick", rec.Seq),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CHTickRecorder) Recent(ctx context.Context, limit int) ([]*models.TickRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	q := fmt.Sprintf(`
        SELECT payload
        FROM %s FINAL
        ORDER BY started_at DESC, seq DESC
        LIMIT ?
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		s.l.Error("clickhouse recent ticks query error",
			applogger.String("table", s.table),
			applogger.Int("limit", limit),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("recent ticks: %w", err)
	}
	defer rows.Close()

	out := make([]*models.TickRecord, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		rec, err := decodeTickPayload(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Close is a no-op; the ClickHouse pool is owned by the DI container.
func (s *CHTickRecorder) Close() error { return nil }
