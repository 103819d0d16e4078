package scanner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/chain"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
)

// live scans (cursor, tip] one height at a time. The first height that cannot be fetched ends the pass and
// is retried by the next one.
func (s *Service) live(ctx context.Context, res *PassResult) error {
	logger := s.logger.With(zap.String("mode", string(model.ModeLive)))

	for height := res.To + 1; height <= res.Tip; height++ {
		scanned, err := s.fetchHeight(ctx, height, model.ModeLive)
		if err != nil {
			res.Failed++
			s.record(model.ModeLive, height, "", 0, err)
			if chain.IsRateLimited(err) {
				logger.Warn("rate limited, cooling down",
					zap.Uint64("height", height),
					zap.Duration("cooldown", s.cfg.RateLimitCooldown),
				)
				if sleepErr := s.sleep(ctx, s.cfg.RateLimitCooldown); sleepErr != nil {
					return sleepErr
				}
			}
			return fmt.Errorf("scan height %d: %w", height, err)
		}

		written := s.writeTokens(ctx, scanned.tokens)
		res.Tokens.Add(written)

		if err := s.saveProgress(ctx, height, scanned.hash); err != nil {
			return err
		}
		res.To = height
		res.Heights++
		s.record(model.ModeLive, height, scanned.hash, len(scanned.tokens), nil)

		if len(scanned.tokens) > 0 {
			logger.Info("tokens found",
				zap.Uint64("height", height),
				zap.Int("tokens", len(scanned.tokens)),
				zap.Int("inserted", written.Inserted),
			)
		}

		if height < res.Tip {
			if err := s.sleep(ctx, s.cfg.InterBlockDelay); err != nil {
				return err
			}
		}
	}
	return nil
}
