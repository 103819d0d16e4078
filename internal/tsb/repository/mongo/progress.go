package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
)

// Progress returns the scan checkpoint. The boolean is false when no checkpoint has been saved yet.
func (r *Repository) Progress(ctx context.Context) (model.Progress, bool, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("progress", err, start)
	}()

	var doc progressDocument
	if err = r.progress.FindOne(ctx, bson.D{{Key: "_id", Value: progressID}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = nil
			return model.Progress{}, false, nil
		}
		err = fmt.Errorf("find progress: %w", err)
		return model.Progress{}, false, err
	}

	return model.Progress{
		LastScannedHeight: uint64(doc.LastScannedHeight),
		LastScannedHash:   doc.LastScannedHash,
		LastScanTimestamp: doc.LastScanTimestamp.UTC(),
	}, true, nil
}

// SaveProgress upserts the singleton checkpoint document.
func (r *Repository) SaveProgress(ctx context.Context, p model.Progress) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("save_progress", err, start)
	}()

	ts := p.LastScanTimestamp
	if ts.IsZero() {
		ts = start
	}

	set := bson.D{
		{Key: "last_scanned_height", Value: int64(p.LastScannedHeight)},
		{Key: "last_scan_timestamp", Value: ts.UTC()},
	}
	var update bson.D
	if p.LastScannedHash != "" {
		set = append(set, bson.E{Key: "last_scanned_hash", Value: p.LastScannedHash})
		update = bson.D{{Key: "$set", Value: set}}
	} else {
		update = bson.D{
			{Key: "$set", Value: set},
			{Key: "$unset", Value: bson.D{{Key: "last_scanned_hash", Value: ""}}},
		}
	}

	_, err = r.progress.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: progressID}},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		err = fmt.Errorf("save progress: %w", err)
		return err
	}
	return nil
}
