package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock drives the aggregator deterministically.
type testClock struct {
	current time.Time
}

func (c *testClock) now() time.Time { return c.current }

func (c *testClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestAggregator(cfg Config) (*Aggregator, *testClock, *[]func()) {
	agg := NewAggregator(cfg)
	clock := &testClock{current: time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC)}
	agg.now = clock.now

	var scheduled []func()
	agg.schedule = func(_ time.Duration, f func()) {
		scheduled = append(scheduled, f)
	}
	return agg, clock, &scheduled
}

func sampleAt(bytes, total int64) Sample {
	return Sample{
		UploadID:      "upl-1",
		FileName:      "final_grade.mov",
		BytesUploaded: bytes,
		BytesTotal:    total,
		ClientRef:     "Acme Studios",
		ProjectRef:    "Pilot Episode",
	}
}

func TestObserve_FirstSampleAlwaysEmits(t *testing.T) {
	agg, _, _ := newTestAggregator(Config{MinInterval: 3 * time.Second, MinPercentDelta: 5})

	event := agg.Observe(sampleAt(1, 1_000_000))
	require.NotNil(t, event, "cold-start sample must emit")
	assert.Equal(t, "upl-1", event.ID)
	assert.False(t, event.IsComplete)
	assert.Zero(t, event.Speed, "first event has no baseline for speed")
}

func TestObserve_CompletionAlwaysEmits(t *testing.T) {
	agg, clock, _ := newTestAggregator(Config{MinInterval: time.Hour, MinPercentDelta: 99})

	require.NotNil(t, agg.Observe(sampleAt(10, 100)))

	// Way inside both throttle gates, but it is the completion sample.
	clock.advance(time.Millisecond)
	event := agg.Observe(sampleAt(100, 100))
	require.NotNil(t, event, "completion must never be swallowed by throttling")
	assert.True(t, event.IsComplete)
	assert.InDelta(t, 100.0, event.Percentage, 0.001)
}

func TestObserve_ThrottleSuppressesBelowBothGates(t *testing.T) {
	agg, clock, _ := newTestAggregator(Config{MinInterval: 3 * time.Second, MinPercentDelta: 5})

	emitted := 0
	// 100 samples spaced 100ms apart, spanning 0.01% in total — each one
	// below the interval gate relative to its neighbor and the whole
	// stream below the percentage gate.
	for i := 1; i <= 100; i++ {
		clock.advance(100 * time.Millisecond)
		if event := agg.Observe(sampleAt(int64(i), 1_000_000)); event != nil {
			emitted++
		}
	}

	assert.LessOrEqual(t, emitted, 2, "at most the first and last samples may emit")
	assert.GreaterOrEqual(t, emitted, 1, "the cold-start sample must emit")
}

func TestObserve_BothGatesRequired(t *testing.T) {
	agg, clock, _ := newTestAggregator(Config{MinInterval: 3 * time.Second, MinPercentDelta: 5})

	require.NotNil(t, agg.Observe(sampleAt(0, 1000)))

	// Percentage gate passes, interval gate doesn't.
	clock.advance(time.Second)
	assert.Nil(t, agg.Observe(sampleAt(500, 1000)))

	// Interval gate passes, percentage gate doesn't.
	clock.advance(10 * time.Second)
	assert.Nil(t, agg.Observe(sampleAt(10, 1000)))

	// Both pass.
	clock.advance(5 * time.Second)
	assert.NotNil(t, agg.Observe(sampleAt(600, 1000)))
}

func TestObserve_SpeedUsesEmittedBaseline(t *testing.T) {
	agg, clock, _ := newTestAggregator(Config{MinInterval: 3 * time.Second, MinPercentDelta: 5})

	require.NotNil(t, agg.Observe(sampleAt(0, 10_000)))

	// Two throttled samples; they must not advance the speed baseline.
	clock.advance(time.Second)
	assert.Nil(t, agg.Observe(sampleAt(100, 10_000)))
	clock.advance(time.Second)
	assert.Nil(t, agg.Observe(sampleAt(200, 10_000)))

	// 8000 bytes over the full 10s since the last *emitted* sample.
	clock.advance(8 * time.Second)
	event := agg.Observe(sampleAt(8000, 10_000))
	require.NotNil(t, event)
	assert.InDelta(t, 800.0, event.Speed, 0.001)
}

func TestObserve_DuplicateCompletionSuppressed(t *testing.T) {
	agg, clock, scheduled := newTestAggregator(Config{MinInterval: time.Second, MinPercentDelta: 1, Grace: time.Minute})

	require.NotNil(t, agg.Observe(sampleAt(100, 100)))
	require.Len(t, *scheduled, 2, "fresh state arms its watchdog, completion schedules one disposal")

	// A late duplicate completion inside the grace window.
	clock.advance(5 * time.Second)
	assert.Nil(t, agg.Observe(sampleAt(100, 100)))
	assert.Len(t, *scheduled, 2, "duplicate completion must not reschedule disposal")
}

func TestObserve_DisposalClearsState(t *testing.T) {
	agg, clock, scheduled := newTestAggregator(Config{MinInterval: time.Second, MinPercentDelta: 1, Grace: time.Minute})

	require.NotNil(t, agg.Observe(sampleAt(100, 100)))
	require.Len(t, *scheduled, 2)

	// Run the disposal the grace timer would have fired (the idle
	// watchdog armed on creation sits at index 0).
	(*scheduled)[1]()

	// A fresh sample for the same id is a new logical upload (cold start).
	clock.advance(time.Hour)
	event := agg.Observe(sampleAt(1, 100))
	require.NotNil(t, event)
	assert.False(t, event.IsComplete)
}

func TestObserve_AbandonedUploadStateEvicted(t *testing.T) {
	agg, clock, scheduled := newTestAggregator(Config{MinInterval: time.Second, MinPercentDelta: 1, IdleTTL: time.Hour})

	require.NotNil(t, agg.Observe(sampleAt(10, 1000)))
	require.Len(t, *scheduled, 1, "fresh state arms one idle watchdog")

	// The upload goes silent; the watchdog fires past the TTL.
	clock.advance(2 * time.Hour)
	(*scheduled)[0]()

	// State is gone: the same id cold-starts again. Had the state
	// survived, this sample would sit inside the percentage gate and be
	// throttled instead.
	event := agg.Observe(sampleAt(11, 1000))
	require.NotNil(t, event)
	assert.Zero(t, event.Speed, "evicted state must not leave a speed baseline behind")
}

func TestObserve_ActiveUploadSurvivesIdleCheck(t *testing.T) {
	agg, clock, scheduled := newTestAggregator(Config{MinInterval: time.Second, MinPercentDelta: 1, IdleTTL: time.Hour})

	require.NotNil(t, agg.Observe(sampleAt(100, 100_000)))
	require.Len(t, *scheduled, 1)

	// Still reporting halfway through the TTL; the sample is throttled
	// but refreshes liveness.
	clock.advance(30 * time.Minute)
	assert.Nil(t, agg.Observe(sampleAt(200, 100_000)))

	(*scheduled)[0]()
	assert.Len(t, *scheduled, 2, "watchdog re-arms for a still-active upload")

	// The state survived: this sample is inside the percentage gate and
	// throttled, not treated as a cold start.
	clock.advance(time.Minute)
	assert.Nil(t, agg.Observe(sampleAt(300, 100_000)))
}

func TestObserve_CompletedUploadLeftToGraceDisposal(t *testing.T) {
	agg, clock, scheduled := newTestAggregator(Config{MinInterval: time.Second, MinPercentDelta: 1, Grace: time.Minute, IdleTTL: time.Hour})

	require.NotNil(t, agg.Observe(sampleAt(100, 100)))
	require.Len(t, *scheduled, 2)

	// The idle watchdog stands down on a completed upload; disposal
	// belongs to the grace timer.
	clock.advance(2 * time.Hour)
	(*scheduled)[0]()
	assert.Len(t, *scheduled, 2, "watchdog must not re-arm or dispose a completed upload")

	// Duplicate suppression still holds until the grace disposal runs.
	assert.Nil(t, agg.Observe(sampleAt(100, 100)))
}

func TestObserve_IndependentUploadsDoNotThrottleEachOther(t *testing.T) {
	agg, _, _ := newTestAggregator(Config{MinInterval: time.Hour, MinPercentDelta: 99})

	for _, id := range []string{"upl-a", "upl-b", "upl-c"} {
		s := sampleAt(1, 100)
		s.UploadID = id
		assert.NotNil(t, agg.Observe(s), "first sample for %s must emit", id)
	}
}
