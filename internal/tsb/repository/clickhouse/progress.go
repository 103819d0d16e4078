package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
)

const (
	progressQuery = `
SELECT
	last_scanned_height,
	last_scanned_hash,
	last_scan_timestamp
FROM tsb_scan_progress FINAL
WHERE id = 1`

	saveProgressQuery = `
INSERT INTO tsb_scan_progress (
	id,
	last_scanned_height,
	last_scanned_hash,
	last_scan_timestamp,
	version
) VALUES (1, ?, ?, ?, ?)`
)

// Progress returns the scan checkpoint. The boolean is false when no checkpoint has been saved yet.
func (r *Repository) Progress(ctx context.Context) (p model.Progress, ok bool, err error) {
	start := time.Now()
	defer func() {
		r.metrics.Observe("progress", err, start)
	}()

	rows, err := r.conn.Query(ctx, progressQuery)
	if err != nil {
		return model.Progress{}, false, fmt.Errorf("query progress: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", cerr)
		}
	}()

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return model.Progress{}, false, fmt.Errorf("iterate progress: %w", err)
		}
		return model.Progress{}, false, nil
	}

	var hash *string
	if err = rows.Scan(&p.LastScannedHeight, &hash, &p.LastScanTimestamp); err != nil {
		return model.Progress{}, false, fmt.Errorf("scan progress: %w", err)
	}
	if hash != nil {
		p.LastScannedHash = *hash
	}
	p.LastScanTimestamp = p.LastScanTimestamp.UTC()
	return p, true, nil
}

// SaveProgress writes a new checkpoint version. Reads collapse versions with FINAL.
func (r *Repository) SaveProgress(ctx context.Context, p model.Progress) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("save_progress", err, start)
	}()

	var hash *string
	if p.LastScannedHash != "" {
		hash = &p.LastScannedHash
	}
	ts := p.LastScanTimestamp
	if ts.IsZero() {
		ts = start
	}

	if err = r.conn.Exec(ctx, saveProgressQuery, p.LastScannedHeight, hash, ts.UTC(), uint64(start.UnixNano())); err != nil {
		err = fmt.Errorf("save progress: %w", err)
		return err
	}
	return nil
}
