package scanner

import (
	"context"
	"time"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/chain"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	Source interface {
		CurrentHeight(ctx context.Context) (uint64, error)
		BlockHash(ctx context.Context, height uint64) (string, error)
		Block(ctx context.Context, hash string) (*chain.Block, error)
	}

	Store interface {
		InsertTokens(ctx context.Context, tokens []model.Token) (model.InsertResult, error)
		Progress(ctx context.Context) (model.Progress, bool, error)
		SaveProgress(ctx context.Context, p model.Progress) error
	}

	Metrics interface {
		ObservePass(mode model.ScanMode, err error, started time.Time)
		ObserveBatch(err error, heights int, started time.Time)
		ObserveHeight(mode model.ScanMode, err error, started time.Time)
		ObserveTokens(res model.InsertResult)
		SetCheckpoint(height uint64)
		SetTip(height uint64)
		IncSkippedTick()
	}

	EventLog interface {
		Record(e model.ScanEvent)
	}
)
