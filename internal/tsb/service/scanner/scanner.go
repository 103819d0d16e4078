// Package scanner drives incremental TSB token indexing: it reads blocks from a chain source, decodes token
// scripts from witness data and advances a durable checkpoint in the store.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/clock"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/chain"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
	"github.com/goodnatureofminers/tsbscanner-backend/pkg/retry"
)

var (
	// ErrPassInProgress is returned by Pass while another pass is running.
	ErrPassInProgress = errors.New("scan pass already in progress")
	// ErrNoProgress is returned when no height of a catch-up batch could be fetched.
	ErrNoProgress = errors.New("no height in batch could be fetched")
)

// PassResult summarises one orchestration pass.
type PassResult struct {
	Mode model.ScanMode
	Tip  uint64
	// From is the cursor the pass started at, To the cursor it left behind.
	From    uint64
	To      uint64
	Heights int
	Failed  int
	Tokens  model.InsertResult
}

type Option func(*Service)

// WithEventLog records the outcome of every scanned height.
func WithEventLog(l EventLog) Option {
	return func(s *Service) {
		s.events = l
	}
}

// WithSleep replaces the context aware sleep used between heights, batches and cooldowns.
func WithSleep(fn clock.SleepFunc) Option {
	return func(s *Service) {
		s.sleep = fn
	}
}

type Service struct {
	source  Source
	store   Store
	metrics Metrics
	events  EventLog
	cfg     Config
	policy  retry.Policy
	logger  *zap.Logger
	sleep   clock.SleepFunc
	now     func() time.Time
	running atomic.Bool
}

func New(source Source, store Store, metrics Metrics, cfg Config, logger *zap.Logger, opts ...Option) (*Service, error) {
	if source == nil {
		return nil, errors.New("scanner source is required")
	}
	if store == nil {
		return nil, errors.New("scanner store is required")
	}
	if metrics == nil {
		return nil, errors.New("scanner metrics is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scanner config: %w", err)
	}

	s := &Service{
		source:  source,
		store:   store,
		metrics: metrics,
		events:  nopEventLog{},
		cfg:     cfg,
		policy:  cfg.retryPolicy(),
		logger: logger.Named("scanner").With(
			zap.String("network", string(cfg.Network)),
			zap.String("window", string(cfg.Window)),
		),
		sleep: clock.Sleep,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run starts a pass immediately and then on every ScanInterval tick until ctx is canceled.
// Ticks that arrive while a pass is still running are skipped.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	start := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.tick(ctx)
		}()
	}

	s.logger.Info("scanner started",
		zap.Duration("interval", s.cfg.ScanInterval),
		zap.Uint64("catchup_threshold", s.cfg.CatchUpThreshold),
	)
	start()

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scanner stopping")
			return ctx.Err()
		case <-ticker.C:
			start()
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	res, err := s.Pass(ctx)
	switch {
	case errors.Is(err, ErrPassInProgress):
		s.metrics.IncSkippedTick()
		s.logger.Info("previous pass still running, skipping tick")
	case err != nil && ctx.Err() != nil:
		s.logger.Debug("scan pass interrupted", zap.Error(err))
	case err != nil:
		s.logger.Error("scan pass failed",
			zap.String("mode", string(res.Mode)),
			zap.Uint64("cursor", res.To),
			zap.Uint64("tip", res.Tip),
			zap.Error(err),
		)
	default:
		s.logger.Info("scan pass complete",
			zap.String("mode", string(res.Mode)),
			zap.Uint64("from", res.From),
			zap.Uint64("to", res.To),
			zap.Uint64("tip", res.Tip),
			zap.Int("heights", res.Heights),
			zap.Int("failed", res.Failed),
			zap.Int("inserted", res.Tokens.Inserted),
			zap.Int("duplicates", res.Tokens.Duplicates),
		)
	}
}

// Pass runs one orchestration pass from the stored checkpoint towards the current tip.
func (s *Service) Pass(ctx context.Context) (PassResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return PassResult{}, ErrPassInProgress
	}
	defer s.running.Store(false)

	started := time.Now()
	res, err := s.pass(ctx)
	s.metrics.ObservePass(res.Mode, err, started)
	return res, err
}

func (s *Service) pass(ctx context.Context) (PassResult, error) {
	tip, err := retry.Do(ctx, s.policy, s.source.CurrentHeight, s.notify("current_height", 0))
	if err != nil {
		return PassResult{Mode: model.ModeLive}, fmt.Errorf("fetch chain tip: %w", err)
	}
	s.metrics.SetTip(tip)

	cursor, err := s.cursor(ctx, tip)
	if err != nil {
		return PassResult{Mode: model.ModeLive, Tip: tip}, err
	}

	res := PassResult{
		Mode: SelectMode(tip, cursor, s.cfg.CatchUpThreshold),
		Tip:  tip,
		From: cursor,
		To:   cursor,
	}
	s.logger.Debug("scan pass starting",
		zap.String("mode", string(res.Mode)),
		zap.Uint64("cursor", cursor),
		zap.Uint64("tip", tip),
	)

	if res.Mode == model.ModeCatchUp {
		err = s.catchUp(ctx, &res)
	} else {
		err = s.live(ctx, &res)
	}
	return res, err
}

// cursor loads the checkpoint, creating it on first use, and applies the sliding window floor.
func (s *Service) cursor(ctx context.Context, tip uint64) (uint64, error) {
	p, ok, err := s.store.Progress(ctx)
	if err != nil {
		return 0, fmt.Errorf("load progress: %w", err)
	}
	if !ok {
		p = model.Progress{
			LastScannedHeight: s.cfg.initialHeight(tip),
			LastScanTimestamp: s.now().UTC(),
		}
		if err := s.store.SaveProgress(ctx, p); err != nil {
			return 0, fmt.Errorf("initialise progress: %w", err)
		}
		s.logger.Info("checkpoint initialised", zap.Uint64("height", p.LastScannedHeight))
	}
	s.metrics.SetCheckpoint(p.LastScannedHeight)

	cursor := p.LastScannedHeight
	if floor := s.cfg.windowFloor(tip); cursor < floor {
		s.logger.Info("cursor behind sliding window, skipping ahead",
			zap.Uint64("cursor", cursor),
			zap.Uint64("floor", floor),
		)
		cursor = floor
	}
	return cursor, nil
}

// scannedHeight is a fetched block reduced to what the store needs.
type scannedHeight struct {
	hash   string
	tokens []model.Token
}

func (s *Service) fetchHeight(ctx context.Context, height uint64, mode model.ScanMode) (scannedHeight, error) {
	started := time.Now()
	out, err := s.fetch(ctx, height)
	s.metrics.ObserveHeight(mode, err, started)
	return out, err
}

func (s *Service) fetch(ctx context.Context, height uint64) (scannedHeight, error) {
	hash, err := retry.Do(ctx, s.policy, func(ctx context.Context) (string, error) {
		return s.source.BlockHash(ctx, height)
	}, s.notify("block_hash", height))
	if err != nil {
		return scannedHeight{}, fmt.Errorf("fetch block hash: %w", err)
	}

	block, err := retry.Do(ctx, s.policy, func(ctx context.Context) (*chain.Block, error) {
		return s.source.Block(ctx, hash)
	}, s.notify("block", height))
	if err != nil {
		return scannedHeight{}, fmt.Errorf("fetch block %s: %w", hash, err)
	}
	if block.Height == 0 {
		block.Height = height
	}

	return scannedHeight{hash: hash, tokens: ExtractTokens(block, s.logger)}, nil
}

func (s *Service) notify(call string, height uint64) retry.Notify {
	return func(err error, attempt int, wait time.Duration) {
		s.logger.Warn("chain call failed, retrying",
			zap.String("call", call),
			zap.Uint64("height", height),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
}

// writeTokens stores tokens. Failures other than duplicates are logged and the tokens dropped.
func (s *Service) writeTokens(ctx context.Context, tokens []model.Token) model.InsertResult {
	if len(tokens) == 0 {
		return model.InsertResult{}
	}
	res, err := s.store.InsertTokens(ctx, tokens)
	s.metrics.ObserveTokens(res)
	if err != nil {
		s.logger.Error("store tokens failed, dropping", zap.Int("tokens", len(tokens)), zap.Error(err))
	} else if res.Failed > 0 {
		s.logger.Warn("some tokens were not stored", zap.Int("failed", res.Failed))
	}
	return res
}

func (s *Service) saveProgress(ctx context.Context, height uint64, hash string) error {
	if err := s.store.SaveProgress(ctx, model.Progress{
		LastScannedHeight: height,
		LastScannedHash:   hash,
		LastScanTimestamp: s.now().UTC(),
	}); err != nil {
		return fmt.Errorf("save progress at %d: %w", height, err)
	}
	s.metrics.SetCheckpoint(height)
	return nil
}

func (s *Service) record(mode model.ScanMode, height uint64, hash string, tokens int, err error) {
	e := model.ScanEvent{
		Network:   s.cfg.Network,
		Height:    height,
		Hash:      hash,
		Mode:      mode,
		Tokens:    uint32(tokens),
		Status:    model.ScanSucceeded,
		ScannedAt: s.now().UTC(),
	}
	if err != nil {
		e.Status = model.ScanFailed
		e.Error = err.Error()
	}
	s.events.Record(e)
}

type nopEventLog struct{}

func (nopEventLog) Record(model.ScanEvent) {}
