package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
)

const insertScanEventsQuery = `
INSERT INTO tsb_scan_events (
	network,
	height,
	hash,
	mode,
	tokens,
	status,
	error,
	scanned_at
) VALUES`

// InsertScanEvents appends per-height scan outcomes to the event log table.
func (r *Repository) InsertScanEvents(ctx context.Context, events []model.ScanEvent) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("insert_scan_events", err, start)
	}()

	if len(events) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, insertScanEventsQuery)
	if err != nil {
		err = fmt.Errorf("prepare scan events batch: %w", err)
		return err
	}

	for _, e := range events {
		if err = batch.Append(
			string(e.Network),
			e.Height,
			e.Hash,
			string(e.Mode),
			e.Tokens,
			string(e.Status),
			e.Error,
			e.ScannedAt.UTC(),
		); err != nil {
			_ = batch.Abort()
			err = fmt.Errorf("append scan event: %w", err)
			return err
		}
	}

	if err = batch.Send(); err != nil {
		err = fmt.Errorf("insert scan events: %w", err)
		return err
	}
	return nil
}
