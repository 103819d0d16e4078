// Package batcher buffers items in the background and hands them to a flush function in rate limited batches.
package batcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// ErrClosed is returned by Add once Stop has been called.
var ErrClosed = errors.New("batcher stopped")

const defaultFinalFlushTimeout = 10 * time.Second

// FlushFunc receives a batch that it must not retain after returning.
type FlushFunc[T any] func(ctx context.Context, items []T) error

// Observer is notified after every flush attempt.
type Observer func(err error, size int, started time.Time)

// Config controls batch size, flush cadence and flush throughput.
type Config struct {
	FlushSize     int
	FlushInterval time.Duration
	// RPS caps flushes per second. Zero disables the limit.
	RPS int
	// FinalFlushTimeout bounds the flush issued on shutdown.
	FinalFlushTimeout time.Duration
}

// Batcher buffers items and flushes them either by size or interval.
type Batcher[T any] struct {
	flush    FlushFunc[T]
	observe  Observer
	itemsCh  chan T
	cfg      Config
	rl       ratelimit.Limiter
	logger   *zap.Logger
	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// New constructs a Batcher. observe may be nil.
func New[T any](logger *zap.Logger, flush FlushFunc[T], observe Observer, cfg Config) *Batcher[T] {
	if cfg.FlushSize < 1 {
		cfg.FlushSize = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.FinalFlushTimeout <= 0 {
		cfg.FinalFlushTimeout = defaultFinalFlushTimeout
	}
	rl := ratelimit.NewUnlimited()
	if cfg.RPS > 0 {
		rl = ratelimit.New(cfg.RPS)
	}
	if observe == nil {
		observe = func(error, int, time.Time) {}
	}
	return &Batcher[T]{
		logger:  logger,
		flush:   flush,
		observe: observe,
		itemsCh: make(chan T, cfg.FlushSize*2),
		cfg:     cfg,
		rl:      rl,
		stop:    make(chan struct{}),
	}
}

// Start begins the background flushing loop.
func (b *Batcher[T]) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.run(ctx)
}

// Stop flushes what is buffered and waits for the loop to exit. It is safe to call more than once.
func (b *Batcher[T]) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
	})
	b.wg.Wait()
}

// Add queues an item, blocking while the buffer is full.
func (b *Batcher[T]) Add(ctx context.Context, item T) error {
	select {
	case <-b.stop:
		return ErrClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.stop:
		return ErrClosed
	case b.itemsCh <- item:
		return nil
	}
}

// TryAdd queues an item without blocking and reports whether it was accepted.
func (b *Batcher[T]) TryAdd(item T) bool {
	select {
	case <-b.stop:
		return false
	default:
	}

	select {
	case b.itemsCh <- item:
		return true
	default:
		return false
	}
}

func (b *Batcher[T]) run(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	buf := make([]T, 0, b.cfg.FlushSize)

	flush := func(ctx context.Context) {
		if len(buf) == 0 {
			return
		}

		b.rl.Take()
		started := time.Now()
		err := b.flush(ctx, buf)
		b.observe(err, len(buf), started)
		if err != nil {
			b.logger.Error("batch not flushed", zap.Int("size", len(buf)), zap.Error(err))
		} else {
			b.logger.Debug("batch flushed", zap.Int("size", len(buf)))
		}
		buf = buf[:0]
	}

	// drain moves queued items into buf and flushes on a context that outlives the canceled one.
	drain := func() {
		final, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.FinalFlushTimeout)
		defer cancel()
		for {
			select {
			case item := <-b.itemsCh:
				buf = append(buf, item)
				if len(buf) >= b.cfg.FlushSize {
					flush(final)
				}
			default:
				flush(final)
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return

		case <-b.stop:
			drain()
			return

		case item := <-b.itemsCh:
			buf = append(buf, item)
			if len(buf) >= b.cfg.FlushSize {
				flush(ctx)
			}

		case <-ticker.C:
			flush(ctx)
		}
	}
}
