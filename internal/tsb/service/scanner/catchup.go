package scanner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
	"github.com/goodnatureofminers/tsbscanner-backend/pkg/workerpool"
)

// catchUp scans (cursor, tip] in batches of BatchSize heights fetched concurrently.
func (s *Service) catchUp(ctx context.Context, res *PassResult) error {
	logger := s.logger.With(zap.String("mode", string(model.ModeCatchUp)))
	logger.Info("catch-up started",
		zap.Uint64("cursor", res.From),
		zap.Uint64("tip", res.Tip),
		zap.Uint64("behind", res.Tip-res.From),
	)

	passStarted := time.Now()
	for res.To < res.Tip {
		heights := batchHeights(res.To, res.Tip, s.cfg.BatchSize)
		if err := s.processBatch(ctx, logger, heights, res); err != nil {
			return err
		}

		logger.Info("catch-up progress",
			zap.Uint64("cursor", res.To),
			zap.Uint64("tip", res.Tip),
			zap.Float64("percent", percent(res.To-res.From, res.Tip-res.From)),
			zap.Float64("blocks_per_sec", rate(res.Heights, time.Since(passStarted))),
		)

		if res.To < res.Tip {
			if err := s.sleep(ctx, s.cfg.BatchDelay); err != nil {
				return err
			}
		}
	}

	logger.Info("catch-up complete", zap.Uint64("height", res.To), zap.Int("failed", res.Failed))
	return nil
}

func (s *Service) processBatch(ctx context.Context, logger *zap.Logger, heights []uint64, res *PassResult) (err error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveBatch(err, len(heights), started)
	}()

	results := workerpool.Map(ctx, s.cfg.MaxConcurrentFetches, heights,
		func(ctx context.Context, height uint64) (scannedHeight, error) {
			return s.fetchHeight(ctx, height, model.ModeCatchUp)
		})

	var (
		tokens []model.Token
		top    uint64
		hash   string
		ok     int
	)
	for _, r := range results {
		if r.Err != nil {
			res.Failed++
			s.record(model.ModeCatchUp, r.Item, "", 0, r.Err)
			if ctx.Err() == nil {
				logger.Warn("height failed, skipping", zap.Uint64("height", r.Item), zap.Error(r.Err))
			}
			continue
		}
		ok++
		tokens = append(tokens, r.Value.tokens...)
		if r.Item > top {
			top, hash = r.Item, r.Value.hash
		}
	}

	if err = ctx.Err(); err != nil {
		return err
	}
	if ok == 0 {
		return fmt.Errorf("%w: heights %d-%d", ErrNoProgress, heights[0], heights[len(heights)-1])
	}

	written := s.writeTokens(ctx, tokens)
	res.Tokens.Add(written)

	if err = s.saveProgress(ctx, top, hash); err != nil {
		return err
	}
	res.To = top
	res.Heights += ok

	for _, r := range results {
		if r.Err == nil {
			s.record(model.ModeCatchUp, r.Item, r.Value.hash, len(r.Value.tokens), nil)
		}
	}

	logger.Info("batch processed",
		zap.Uint64("from", heights[0]),
		zap.Uint64("to", heights[len(heights)-1]),
		zap.Int("fetched", ok),
		zap.Int("failed", len(heights)-ok),
		zap.Int("tokens", len(tokens)),
		zap.Int("inserted", written.Inserted),
		zap.Int("duplicates", written.Duplicates),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// batchHeights returns up to size heights following cursor, capped at tip.
func batchHeights(cursor, tip uint64, size int) []uint64 {
	end := min(cursor+uint64(size), tip)
	heights := make([]uint64, 0, end-cursor)
	for h := cursor + 1; h <= end; h++ {
		heights = append(heights, h)
	}
	return heights
}

func percent(done, total uint64) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) * 100 / float64(total)
}

func rate(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}
