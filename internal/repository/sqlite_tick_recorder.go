package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ArbPull/internal/domain/models"
	applogger "ArbPull/pkg/logger"
	"ArbPull/pkg/sqlite"
)

var sqliteTickSchema = []string{
	`CREATE TABLE IF NOT EXISTS tick_records (
		run_id            TEXT    NOT NULL,
		seq               INTEGER NOT NULL,
		started_at        INTEGER NOT NULL,
		finished_at       INTEGER NOT NULL,
		status            TEXT    NOT NULL,
		stage             TEXT    NOT NULL,
		phase             TEXT    NOT NULL,
		peer_count        INTEGER NOT NULL,
		considered        INTEGER NOT NULL,
		accepted          INTEGER NOT NULL,
		dispatched        INTEGER NOT NULL,
		errors            INTEGER NOT NULL,
		recognized_profit TEXT    NOT NULL,
		disbursed         TEXT    NOT NULL,
		payload           TEXT    NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tick_records_started ON tick_records(started_at)`,
}

// SQLiteTickRecorder keeps the tick audit trail in a local SQLite file.
type SQLiteTickRecorder struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewSQLiteTickRecorder(ctx context.Context, path string, l *applogger.Logger) (*SQLiteTickRecorder, error) {
	db, err := sqlite.Open(ctx, path, sqliteTickSchema)
	if err != nil {
		return nil, err
	}
	if l == nil {
		l = applogger.Nop()
	}
	l.Info("sqlite tick recorder opened", applogger.String("path", path))
	return &SQLiteTickRecorder{db: db, l: l}, nil
}

// Record inserts the record. Re-recording the same (run, seq) is a no-op.
func (s *SQLiteTickRecorder) Record(ctx context.Context, rec *models.TickRecord) error {
	row, err := newTickRow(rec)
	if err != nil {
		return err
	}
	const q = `INSERT OR IGNORE INTO tick_records
		(run_id, seq, started_at, finished_at, status, stage, phase, peer_count,
		 considered, accepted, dispatched, errors, recognized_profit, disbursed, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		row.RunID, row.Seq,
		row.StartedAt.UnixMilli(), row.FinishedAt.UnixMilli(),
		row.Status, row.Stage, row.Phase, row.PeerCount,
		row.Considered, row.Accepted, row.Dispatched, row.Errors,
		row.RecognizedProfit.String(), row.Disbursed.String(), row.Payload,
	)
	if err != nil {
		s.l.Error("sqlite record tick error",
			applogger.Uint64("tick", rec.Seq),
			applogger.Error(err),
		)
		return fmt.Errorf("insert tick %d: %w", rec.Seq, err)
	}
	return nil
}

func (s *SQLiteTickRecorder) Recent(ctx context.Context, limit int) ([]*models.TickRecord, error) {
	start := time.Now()
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM tick_records ORDER BY started_at DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
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
	s.l.Debug("sqlite recent ticks ok",
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *SQLiteTickRecorder) Close() error {
	return s.db.Close()
}
