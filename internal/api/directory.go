// File: internal/api/directory.go
// Package api
// Author: momentics <momentics@gmail.com>
//
// ReservedCoreDirectory is the NormalCore-facing view of the
// Scheduler's reserved-core lifecycle: the admission loop only says
// "activate somebody on my queue" / "release my queue", never which
// specific ReservedCore ends up bound. Choosing one is the Scheduler's
// job.
package api

// ReservedCoreDirectory lets a NormalCore ask the Scheduler to pick and
// notify a ReservedCore, or to release one, without the NormalCore
// holding any reserved-core identity itself.
type ReservedCoreDirectory interface {
	// ActivateQueue picks the next registered ReservedCore round-robin and
	// sends it ToWork(queueID) over the RuntimeBus. It does not check
	// whether that core is already draining other queues; a ReservedCore
	// drains every queue it is bound to. Returns false if no reserved core
	// is registered or its ToWork ring is full.
	ActivateQueue(queueID int) bool
	// ReleaseQueue sends ToRest(queueID) to whichever ReservedCore is
	// currently bound as consumer of queueID.
	ReleaseQueue(queueID int) bool
	// RebalanceNow requests an on-demand short-epoch-triggered rebalance
	// for coreID.
	RebalanceNow(coreID int)
}
