package model

import "time"

// Progress is the singleton scan checkpoint.
type Progress struct {
	LastScannedHeight uint64
	// LastScannedHash is empty until a height has been processed.
	LastScannedHash   string
	LastScanTimestamp time.Time
}

// ScanMode is the strategy a pass uses to advance the checkpoint.
type ScanMode string

var (
	// ModeCatchUp fetches batches of heights concurrently.
	ModeCatchUp ScanMode = "catchup"
	// ModeLive processes heights one at a time in order.
	ModeLive ScanMode = "live"
)

// ScanStatus describes how a single height scan ended.
type ScanStatus string

var (
	ScanSucceeded ScanStatus = "success"
	ScanFailed    ScanStatus = "failed"
)

// ScanEvent records the outcome of scanning one height.
type ScanEvent struct {
	Network   Network
	Height    uint64
	Hash      string
	Mode      ScanMode
	Tokens    uint32
	Status    ScanStatus
	Error     string
	ScannedAt time.Time
}
