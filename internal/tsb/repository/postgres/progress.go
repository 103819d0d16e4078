package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
)

// Progress returns the scan checkpoint. The boolean is false when no checkpoint has been saved yet.
func (r *Repository) Progress(ctx context.Context) (model.Progress, bool, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("progress", err, start)
	}()

	const query = `
SELECT last_scanned_height, last_scanned_hash, last_scan_timestamp
FROM tsb_scan_progress
WHERE id = 1`

	var (
		height int64
		hash   *string
		ts     time.Time
	)
	if err = r.pool.QueryRow(ctx, query).Scan(&height, &hash, &ts); err != nil {
		if isNotFoundError(err) {
			err = nil
			return model.Progress{}, false, nil
		}
		err = fmt.Errorf("query progress: %w", err)
		return model.Progress{}, false, err
	}

	p := model.Progress{
		LastScannedHeight: uint64(height),
		LastScanTimestamp: ts.UTC(),
	}
	if hash != nil {
		p.LastScannedHash = *hash
	}
	return p, true, nil
}

// SaveProgress upserts the singleton checkpoint row.
func (r *Repository) SaveProgress(ctx context.Context, p model.Progress) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("save_progress", err, start)
	}()

	const query = `
INSERT INTO tsb_scan_progress (id, last_scanned_height, last_scanned_hash, last_scan_timestamp, updated_at)
VALUES (1, $1, $2, $3, NOW())
ON CONFLICT (id) DO UPDATE
SET last_scanned_height = EXCLUDED.last_scanned_height,
    last_scanned_hash = EXCLUDED.last_scanned_hash,
    last_scan_timestamp = EXCLUDED.last_scan_timestamp,
    updated_at = NOW()`

	var hash *string
	if p.LastScannedHash != "" {
		hash = &p.LastScannedHash
	}
	ts := p.LastScanTimestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	if _, err = r.pool.Exec(ctx, query, int64(p.LastScannedHeight), hash, ts.UTC()); err != nil {
		err = fmt.Errorf("save progress: %w", err)
		return err
	}
	return nil
}
