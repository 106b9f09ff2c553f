// Package progress tracks cumulative counts for a publishing run.
package progress

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a tracker
type Status string

const (
	StatusIdle     Status = "IDLE"
	StatusRunning  Status = "RUNNING"
	StatusComplete Status = "COMPLETE"
)

// Info is a snapshot of the tracker
type Info struct {
	Status         Status        `json:"status"`
	Processed      int           `json:"processed"`
	Total          int           `json:"total"`
	Failed         int           `json:"failed"`
	StartTime      time.Time     `json:"start_time"`
	LastUpdateTime time.Time     `json:"last_update_time"`
	EstimatedETA   time.Duration `json:"estimated_eta"`
}

// Remaining returns the number of records not yet processed
func (i Info) Remaining() int {
	if r := i.Total - i.Processed; r > 0 {
		return r
	}
	return 0
}

// Percentage returns the completed share in the range 0..100
func (i Info) Percentage() float64 {
	if i.Total <= 0 {
		return 0
	}
	p := float64(i.Processed) * 100 / float64(i.Total)
	if p > 100 {
		return 100
	}
	return p
}

func (i *Info) updateETA() {
	if i.Total <= 0 || i.Processed <= 0 || i.Status != StatusRunning {
		i.EstimatedETA = 0
		return
	}

	elapsed := i.LastUpdateTime.Sub(i.StartTime)
	if elapsed <= 0 {
		i.EstimatedETA = 0
		return
	}

	remaining := i.Remaining()
	if remaining == 0 {
		i.EstimatedETA = 0
		return
	}

	perItem := elapsed / time.Duration(i.Processed)
	i.EstimatedETA = perItem * time.Duration(remaining)
}

// Tracker accumulates processed and failed counts against a known total
type Tracker struct {
	mu   sync.Mutex
	info Info
	now  func() time.Time
}

// New creates an idle tracker
func New() *Tracker {
	return &Tracker{
		info: Info{Status: StatusIdle},
		now:  time.Now,
	}
}

// Start resets the counters for a run over total records
func (t *Tracker) Start(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.info = Info{
		Status:         StatusRunning,
		Total:          total,
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Record counts one processed record and returns the updated snapshot
func (t *Tracker) Record(failed bool) Info {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.info.Processed++
	if failed {
		t.info.Failed++
	}
	t.info.LastUpdateTime = t.now()
	t.info.updateETA()
	return t.info
}

// Finish marks the run complete
func (t *Tracker) Finish() Info {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.info.Status = StatusComplete
	t.info.LastUpdateTime = t.now()
	t.info.EstimatedETA = 0
	return t.info
}
