package scanner

import (
	"errors"
	"fmt"
	"time"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/chain"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
	"github.com/goodnatureofminers/tsbscanner-backend/pkg/retry"
)

// Window selects where scanning starts.
type Window string

const (
	// WindowFixed scans forward from StartHeight.
	WindowFixed Window = "fixed"
	// WindowSliding only scans the most recent WindowSize blocks below the tip.
	WindowSliding Window = "sliding"
)

const DefaultStartHeight uint64 = 4321372

type Config struct {
	Network              model.Network
	CatchUpThreshold     uint64
	BatchSize            int
	MaxConcurrentFetches int
	ScanInterval         time.Duration
	InterBlockDelay      time.Duration
	BatchDelay           time.Duration
	RetryAttempts        int
	RetryBaseDelay       time.Duration
	RetryMaxDelay        time.Duration
	// RateLimitRetryDelay is the minimum wait before retrying a rate limited fetch.
	RateLimitRetryDelay time.Duration
	// RateLimitCooldown is slept by live mode before it gives up a rate limited pass.
	RateLimitCooldown time.Duration
	StartHeight       uint64
	Window            Window
	WindowSize        uint64
}

func DefaultConfig() Config {
	return Config{
		Network:              model.Mainnet,
		CatchUpThreshold:     100,
		BatchSize:            50,
		MaxConcurrentFetches: 5,
		ScanInterval:         60 * time.Second,
		InterBlockDelay:      200 * time.Millisecond,
		BatchDelay:           time.Second,
		RetryAttempts:        3,
		RetryBaseDelay:       time.Second,
		RetryMaxDelay:        30 * time.Second,
		RateLimitRetryDelay:  5 * time.Second,
		RateLimitCooldown:    30 * time.Second,
		StartHeight:          DefaultStartHeight,
		Window:               WindowFixed,
		WindowSize:           100,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.BatchSize < 1 {
		errs = append(errs, errors.New("batch size must be positive"))
	}
	if c.MaxConcurrentFetches < 1 {
		errs = append(errs, errors.New("max concurrent fetches must be positive"))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, errors.New("retry attempts must be positive"))
	}
	if c.ScanInterval <= 0 {
		errs = append(errs, errors.New("scan interval must be positive"))
	}
	if c.InterBlockDelay < 0 || c.BatchDelay < 0 || c.RetryBaseDelay < 0 || c.RateLimitCooldown < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	switch c.Window {
	case WindowFixed:
	case WindowSliding:
		if c.WindowSize == 0 {
			errs = append(errs, errors.New("sliding window size must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown scan window %q", c.Window))
	}
	return errors.Join(errs...)
}

func (c Config) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    c.RetryAttempts,
		BaseDelay:      c.RetryBaseDelay,
		Factor:         2,
		MaxDelay:       c.RetryMaxDelay,
		RateLimitDelay: c.RateLimitRetryDelay,
		IsRateLimited:  chain.IsRateLimited,
	}
}

// windowFloor is the lowest cursor a sliding window allows for tip.
func (c Config) windowFloor(tip uint64) uint64 {
	if c.Window != WindowSliding || tip <= c.WindowSize {
		return 0
	}
	return tip - c.WindowSize
}

// initialHeight is the cursor stored when no checkpoint exists. It never exceeds tip.
func (c Config) initialHeight(tip uint64) uint64 {
	h := c.StartHeight
	if c.Window == WindowSliding {
		h = c.windowFloor(tip)
	}
	return min(h, tip)
}

// SelectMode picks catch-up when the cursor trails tip by more than threshold blocks.
func SelectMode(tip, cursor, threshold uint64) model.ScanMode {
	if tip > cursor && tip-cursor > threshold {
		return model.ModeCatchUp
	}
	return model.ModeLive
}
