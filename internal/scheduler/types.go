package scheduler

import (
	"time"

	"github.com/scryerhq/scryer-core/internal/store"
)

// Priority bands (§4.7.1): lower numbers win, FIFO on ties.
const (
	PriorityOnDemand     = 0  // user- or API-triggered; 0-4
	PriorityHighPeriodic = 5  // interval < 30s; 5-9
	PriorityNormal       = 10 // 30s <= interval < 300s; 10-14
	PriorityLowPeriodic  = 15 // interval >= 300s; 15-19
	priorityRetryCeiling = 20
)

// QueuedFlow is one pending unit of work on a device's queue.
type QueuedFlow struct {
	Priority  int
	Timestamp time.Time
	FlowID    string
	Flow      *store.Flow
	Reason    string // "on_demand", "periodic", "retry"
}

// priorityForInterval buckets a periodic flow's re-enqueue priority by its
// configured update interval.
func priorityForInterval(intervalSeconds int) int {
	switch {
	case intervalSeconds < 30:
		return PriorityHighPeriodic
	case intervalSeconds < 300:
		return PriorityNormal
	default:
		return PriorityLowPeriodic
	}
}

// retryPriority demotes a flow that lost a lock-contention race, capped so
// repeated contention never starves it entirely.
func retryPriority(original int) int {
	if original+5 > priorityRetryCeiling {
		return priorityRetryCeiling
	}
	return original + 5
}
