// File: internal/normalcore/config.go
// Package normalcore
// Author: momentics <momentics@gmail.com>
//
// Config holds the per-core receive/admission tunables.

package normalcore

// Config is one NormalCore's admission/epoch tunables.
type Config struct {
	CoreID int
	Qid    int // NIC queue id; one queue per core

	RssSize           int    // 512
	LocalRingCapacity uint64 // power of two, default 8192
	Burst             int    // 32
	PullBatches       int    // up to 8 batches of `Burst` per pass

	ShortEpochNs int64 // typ. 1,000,000 (1ms)

	// EpochPacketThresh is the offline-profile-derived per-core packet
	// budget for one short epoch.
	EpochPacketThresh uint32

	// LargeQueueThresh triggers boost mode when local ring depth reaches
	// it; BoostBusyThreshold triggers it on pull
	// volume instead. Leaving boost happens below half LargeQueueThresh.
	LargeQueueThresh   int
	BoostBusyThreshold int

	// NumaNode is passed to the packet pool for locality; -1 means no
	// preference.
	NumaNode int
}

// DefaultConfig returns sensible defaults for coreID/qid: a 1 ms short
// epoch with an 8000-packet admission budget.
func DefaultConfig(coreID, qid int) Config {
	return Config{
		CoreID:             coreID,
		Qid:                qid,
		RssSize:            512,
		LocalRingCapacity:  8192,
		Burst:              32,
		PullBatches:        8,
		ShortEpochNs:       1_000_000,
		EpochPacketThresh:  8000,
		LargeQueueThresh:   4096,
		BoostBusyThreshold: 8 * 32,
		NumaNode:           -1,
	}
}
