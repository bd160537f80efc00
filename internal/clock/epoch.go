// File: internal/clock/epoch.go
// Package clock
// Author: momentics <momentics@gmail.com>
//
// EpochTicker derives short/long epoch boundary crossings from a Clock.

package clock

import "github.com/momentics/nfvworker/internal/api"

// Default epoch periods: short 1 ms, long 1 s.
const (
	DefaultShortEpochNs = int64(1_000_000)
	DefaultLongEpochNs  = int64(1_000_000_000)
)

// EpochTicker tracks short and long epoch boundaries against a shared
// Clock. One instance typically backs a single NormalCore (for the short
// epoch) or the Scheduler (for the long epoch); both share the period
// constants from configuration.
type EpochTicker struct {
	clk api.Clock

	shortPeriodNs int64
	longPeriodNs  int64

	lastShortCloseNs int64
	lastLongCloseNs  int64

	epochID uint64
}

// NewEpochTicker creates a ticker starting both epochs "closed" at the
// clock's current time.
func NewEpochTicker(clk api.Clock, shortPeriodNs, longPeriodNs int64) *EpochTicker {
	now := clk.NowNs()
	return &EpochTicker{
		clk:              clk,
		shortPeriodNs:    shortPeriodNs,
		longPeriodNs:     longPeriodNs,
		lastShortCloseNs: now,
		lastLongCloseNs:  now,
	}
}

// ShortEpochDue reports whether short_epoch_ns have elapsed since the last
// short-epoch close.
func (e *EpochTicker) ShortEpochDue() bool {
	return e.clk.NowNs()-e.lastShortCloseNs >= e.shortPeriodNs
}

// CloseShortEpoch marks the short epoch closed at the current clock time
// and returns the incremented epoch id.
func (e *EpochTicker) CloseShortEpoch() uint64 {
	e.lastShortCloseNs = e.clk.NowNs()
	e.epochID++
	return e.epochID
}

// LongEpochDue reports whether long_epoch_ns have elapsed since the last
// long-epoch close.
func (e *EpochTicker) LongEpochDue() bool {
	return e.clk.NowNs()-e.lastLongCloseNs >= e.longPeriodNs
}

// CloseLongEpoch marks the long epoch closed at the current clock time.
func (e *EpochTicker) CloseLongEpoch() {
	e.lastLongCloseNs = e.clk.NowNs()
}

// EpochID returns the current short-epoch sequence number, surfaced via
// the epoch_id metric.
func (e *EpochTicker) EpochID() uint64 { return e.epochID }

// NowNs is a passthrough convenience for callers holding only the ticker.
func (e *EpochTicker) NowNs() int64 { return e.clk.NowNs() }

// NsSinceLastRssUpdate reports the time elapsed since lastUpdateNs, the
// quantity the 5ms RSS-update rate limit is checked against.
func (e *EpochTicker) NsSinceLastRssUpdate(lastUpdateNs int64) int64 {
	return e.clk.NowNs() - lastUpdateNs
}
