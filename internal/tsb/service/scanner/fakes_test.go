package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/chain"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/codec"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
)

var errUnavailable = errors.New("node unavailable")

// fakeChain serves empty blocks for every height up to tip, plus one token per height listed in tokens.
type fakeChain struct {
	mu     sync.Mutex
	tip    uint64
	tipFn  func(ctx context.Context) (uint64, error)
	fail   map[uint64]error
	tokens map[uint64]bool
	calls  []uint64
}

func newFakeChain(tip uint64) *fakeChain {
	return &fakeChain{tip: tip, fail: map[uint64]error{}, tokens: map[uint64]bool{}}
}

func (c *fakeChain) CurrentHeight(ctx context.Context) (uint64, error) {
	if c.tipFn != nil {
		return c.tipFn(ctx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tip, nil
}

func (c *fakeChain) BlockHash(_ context.Context, height uint64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, height)
	if err := c.fail[height]; err != nil {
		return "", err
	}
	if height > c.tip {
		return "", fmt.Errorf("height %d above tip", height)
	}
	return blockHash(height), nil
}

func (c *fakeChain) Block(_ context.Context, hash string) (*chain.Block, error) {
	var height uint64
	if _, err := fmt.Sscanf(hash, "block-%d", &height); err != nil {
		return nil, err
	}

	c.mu.Lock()
	withToken := c.tokens[height]
	c.mu.Unlock()

	block := &chain.Block{
		Hash:   hash,
		Height: height,
		Time:   time.Unix(1_700_000_000+int64(height), 0),
		Transactions: []chain.Transaction{{
			TxID:   fmt.Sprintf("coinbase-%d", height),
			Inputs: []chain.Input{{Coinbase: true}},
		}},
	}
	if withToken {
		script, err := codec.Encode(model.Token{
			TokenID:  "SPX",
			Amount:   height,
			TypeCode: 1,
			Metadata: model.Metadata{Raw: "sparks"},
		})
		if err != nil {
			return nil, err
		}
		block.Transactions = append(block.Transactions, chain.Transaction{
			TxID:   txID(height),
			Inputs: []chain.Input{{PrevTxID: "prev", Witness: [][]byte{{0x01}, script}}},
		})
	}
	return block, nil
}

func (c *fakeChain) fetched() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.calls...)
}

func blockHash(height uint64) string {
	return fmt.Sprintf("block-%d", height)
}

func txID(height uint64) string {
	return fmt.Sprintf("tx-%d", height)
}

// memoryStore keeps tokens unique by txid and remembers every saved checkpoint.
type memoryStore struct {
	mu        sync.Mutex
	tokens    map[string]model.Token
	progress  *model.Progress
	saved     []uint64
	insertErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{tokens: map[string]model.Token{}}
}

func (s *memoryStore) withProgress(height uint64) *memoryStore {
	s.progress = &model.Progress{LastScannedHeight: height}
	return s
}

func (s *memoryStore) InsertTokens(_ context.Context, tokens []model.Token) (model.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return model.InsertResult{Failed: len(tokens)}, s.insertErr
	}
	var res model.InsertResult
	for _, t := range tokens {
		if _, ok := s.tokens[t.TxID]; ok {
			res.Duplicates++
			continue
		}
		s.tokens[t.TxID] = t
		res.Inserted++
	}
	return res, nil
}

func (s *memoryStore) Progress(context.Context) (model.Progress, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress == nil {
		return model.Progress{}, false, nil
	}
	return *s.progress, true, nil
}

func (s *memoryStore) SaveProgress(_ context.Context, p model.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = &p
	s.saved = append(s.saved, p.LastScannedHeight)
	return nil
}

func (s *memoryStore) checkpoint() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress == nil {
		return 0
	}
	return s.progress.LastScannedHeight
}

// eventRecorder collects scan events in memory.
type eventRecorder struct {
	mu     sync.Mutex
	events []model.ScanEvent
}

func (r *eventRecorder) Record(e model.ScanEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) byStatus(status model.ScanStatus) map[uint64]model.ScanEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uint64]model.ScanEvent)
	for _, e := range r.events {
		if e.Status == status {
			out[e.Height] = e
		}
	}
	return out
}

// sleepRecorder replaces real sleeps and remembers the requested durations.
type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.slept = append(r.slept, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) count(d time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.slept {
		if s == d {
			n++
		}
	}
	return n
}
