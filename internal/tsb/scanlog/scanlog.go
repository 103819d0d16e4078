// Package scanlog records per-height scan outcomes asynchronously so the scan loop never waits on the event store.
package scanlog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
	"github.com/goodnatureofminers/tsbscanner-backend/pkg/batcher"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	Store interface {
		InsertScanEvents(ctx context.Context, events []model.ScanEvent) error
	}

	Metrics interface {
		ObserveFlush(err error, events int, started time.Time)
		IncDropped()
	}
)

// Config controls how events are batched before they are written.
type Config struct {
	FlushSize     int
	FlushInterval time.Duration
	RPS           int
}

// Log buffers scan events and writes them in batches.
type Log struct {
	batcher *batcher.Batcher[model.ScanEvent]
	metrics Metrics
	logger  *zap.Logger
}

func New(logger *zap.Logger, store Store, metrics Metrics, cfg Config) *Log {
	logger = logger.Named("scan_log")
	return &Log{
		batcher: batcher.New[model.ScanEvent](logger, store.InsertScanEvents, metrics.ObserveFlush, batcher.Config{
			FlushSize:     cfg.FlushSize,
			FlushInterval: cfg.FlushInterval,
			RPS:           cfg.RPS,
		}),
		metrics: metrics,
		logger:  logger,
	}
}

// Start begins flushing in the background until ctx is done or Stop is called.
func (l *Log) Start(ctx context.Context) {
	l.batcher.Start(ctx)
}

// Stop writes buffered events and waits for the writer to exit.
func (l *Log) Stop() {
	l.batcher.Stop()
}

// Record queues an event. Events are dropped when the buffer is full.
func (l *Log) Record(e model.ScanEvent) {
	if e.ScannedAt.IsZero() {
		e.ScannedAt = time.Now().UTC()
	}
	if l.batcher.TryAdd(e) {
		return
	}
	l.metrics.IncDropped()
	l.logger.Warn("scan event dropped",
		zap.Uint64("height", e.Height),
		zap.String("status", string(e.Status)),
	)
}
