package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		t := current
		current = current.Add(step)
		return t
	}
}

func TestTracker_New(t *testing.T) {
	tr := New()
	require.NotNil(t, tr)
	assert.Equal(t, StatusIdle, tr.info.Status)
}

func TestTracker_RecordCounts(t *testing.T) {
	tr := New()
	tr.Start(3)

	info := tr.Record(false)
	assert.Equal(t, 1, info.Processed)
	assert.Equal(t, 0, info.Failed)
	assert.Equal(t, 2, info.Remaining())

	info = tr.Record(true)
	assert.Equal(t, 2, info.Processed)
	assert.Equal(t, 1, info.Failed)
	assert.Equal(t, 1, info.Remaining())

	info = tr.Record(false)
	assert.Equal(t, 0, info.Remaining())
	assert.InDelta(t, 100.0, info.Percentage(), 0.001)

	final := tr.Finish()
	assert.Equal(t, StatusComplete, final.Status)
	assert.Equal(t, 3, final.Processed)
	assert.Equal(t, 1, final.Failed)
}

func TestTracker_ETA(t *testing.T) {
	tr := New()
	tr.now = fakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)
	tr.Start(10)

	info := tr.Record(false)
	// One record took one second; nine remain.
	assert.Equal(t, 9*time.Second, info.EstimatedETA)

	assert.Zero(t, tr.Finish().EstimatedETA)
}

func TestTracker_StartResets(t *testing.T) {
	tr := New()
	tr.Start(2)
	tr.Record(true)

	tr.Start(5)
	info := tr.Record(false)
	assert.Equal(t, StatusRunning, info.Status)
	assert.Equal(t, 1, info.Processed)
	assert.Equal(t, 0, info.Failed)
	assert.Equal(t, 5, info.Total)
}

func TestInfo_PercentageWithoutTotal(t *testing.T) {
	assert.Zero(t, Info{}.Percentage())
	assert.Equal(t, 0, Info{Processed: 4, Total: 2}.Remaining())
}
