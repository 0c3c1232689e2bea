// Package progress turns the flood of raw byte-offset samples a client
// reports into a throttled stream of human-readable events. State is
// per-upload under per-key locks, so unrelated uploads never serialize on
// each other, and is disposed a fixed grace period after completion so
// late duplicate signals can't resurrect it. State for uploads that never
// complete is evicted after an idle TTL instead.
package progress

import (
	"sync"
	"time"
)

// Sample is one raw progress report from the uploading client.
type Sample struct {
	UploadID      string
	FileName      string
	BytesUploaded int64
	BytesTotal    int64
	ClientRef     string
	ProjectRef    string
}

// Event is the compact, observer-facing progress record. ID is stable for
// the lifetime of one logical upload and reused across its events.
type Event struct {
	ID          string  `json:"id"`
	FileName    string  `json:"fileName"`
	Size        int64   `json:"size"`
	Offset      int64   `json:"offset"`
	Percentage  float64 `json:"percentage"`
	Speed       float64 `json:"speed,omitempty"` // bytes per second
	ClientName  string  `json:"clientName"`
	ProjectName string  `json:"projectName"`
	IsComplete  bool    `json:"isComplete"`
}

// Config tunes the throttle.
type Config struct {
	// MinInterval is the minimum wall-clock gap between emitted events for
	// one upload. Guards against fast small-chunk clients.
	MinInterval time.Duration

	// MinPercentDelta is the minimum percentage-point change between
	// emitted events. Guards against slow large-file clients reporting
	// frequent tiny deltas.
	MinPercentDelta float64

	// Grace is how long completed per-upload state stays around to absorb
	// late duplicate completion signals before disposal.
	Grace time.Duration

	// IdleTTL is how long an upload may go without any sample before its
	// state is evicted. Uploads that never complete — abandoned tabs,
	// aborted sessions, spammed fresh uploadIds — must not accumulate
	// state forever; the progress endpoint is unauthenticated-shaped
	// (fire-and-forget) and this map is its only memory cost.
	IdleTTL time.Duration
}

// Default tuning.
const (
	DefaultMinInterval     = 3 * time.Second
	DefaultMinPercentDelta = 5.0
	DefaultGrace           = 30 * time.Second
	DefaultIdleTTL         = time.Hour
)

func (c *Config) withDefaults() {
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.MinPercentDelta <= 0 {
		c.MinPercentDelta = DefaultMinPercentDelta
	}
	if c.Grace <= 0 {
		c.Grace = DefaultGrace
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = DefaultIdleTTL
	}
}

const shardCount = 16

type uploadState struct {
	mu sync.Mutex

	seen             bool
	lastSeenAt       time.Time
	lastEmittedAt    time.Time
	lastEmittedBytes int64
	lastEmittedPct   float64
	complete         bool
}

type shard struct {
	mu      sync.Mutex
	uploads map[string]*uploadState
}

// Aggregator decides which samples are significant enough to republish.
type Aggregator struct {
	cfg    Config
	shards [shardCount]*shard

	// now and schedule are swapped out by tests.
	now      func() time.Time
	schedule func(d time.Duration, f func())
}

// NewAggregator creates an Aggregator with the given throttle tuning.
func NewAggregator(cfg Config) *Aggregator {
	cfg.withDefaults()
	a := &Aggregator{
		cfg:      cfg,
		now:      time.Now,
		schedule: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
	for i := range a.shards {
		a.shards[i] = &shard{uploads: make(map[string]*uploadState)}
	}
	return a
}

func (a *Aggregator) shardFor(uploadID string) *shard {
	var h uint32 = 2166136261
	for i := 0; i < len(uploadID); i++ {
		h ^= uint32(uploadID[i])
		h *= 16777619
	}
	return a.shards[h%shardCount]
}

// Observe ingests one raw sample. It returns the event to publish, or nil
// when the sample is throttled.
//
// The first sample for an unseen upload always emits (cold-start
// visibility) and a completion sample always emits (completion must never
// be swallowed). Everything in between must clear both the interval gate
// and the percentage gate. On throttled samples the emitted baseline is
// deliberately not advanced, so the next emitted sample's speed reflects
// the true multi-sample interval.
func (a *Aggregator) Observe(sample Sample) *Event {
	sh := a.shardFor(sample.UploadID)

	sh.mu.Lock()
	st, ok := sh.uploads[sample.UploadID]
	if !ok {
		st = &uploadState{}
		sh.uploads[sample.UploadID] = st
	}
	sh.mu.Unlock()

	if !ok {
		// Fresh state gets an idle watchdog. A completed upload is
		// disposed by the grace timer instead; the watchdog stands down
		// when it sees the complete flag.
		a.schedule(a.cfg.IdleTTL, func() { a.evictIfIdle(sample.UploadID) })
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := a.now()
	st.lastSeenAt = now
	isComplete := sample.BytesTotal > 0 && sample.BytesUploaded >= sample.BytesTotal

	if st.complete {
		// Duplicate completion signal inside the grace window. Already
		// announced; never re-emit, never re-create state.
		return nil
	}

	pct := 0.0
	if sample.BytesTotal > 0 {
		pct = float64(sample.BytesUploaded) / float64(sample.BytesTotal) * 100
	}

	first := !st.seen
	gatesPass := now.Sub(st.lastEmittedAt) >= a.cfg.MinInterval &&
		pct-st.lastEmittedPct >= a.cfg.MinPercentDelta

	if !first && !isComplete && !gatesPass {
		return nil
	}

	event := &Event{
		ID:          sample.UploadID,
		FileName:    sample.FileName,
		Size:        sample.BytesTotal,
		Offset:      sample.BytesUploaded,
		Percentage:  pct,
		ClientName:  sample.ClientRef,
		ProjectName: sample.ProjectRef,
		IsComplete:  isComplete,
	}

	if st.seen {
		elapsed := now.Sub(st.lastEmittedAt).Seconds()
		if elapsed > 0 {
			event.Speed = float64(sample.BytesUploaded-st.lastEmittedBytes) / elapsed
		}
	}

	st.seen = true
	st.lastEmittedAt = now
	st.lastEmittedBytes = sample.BytesUploaded
	st.lastEmittedPct = pct

	if isComplete {
		st.complete = true
		a.schedule(a.cfg.Grace, func() { a.dispose(sample.UploadID) })
	}

	return event
}

// dispose removes a completed upload's state after the grace period.
func (a *Aggregator) dispose(uploadID string) {
	sh := a.shardFor(uploadID)
	sh.mu.Lock()
	delete(sh.uploads, uploadID)
	sh.mu.Unlock()
}

// evictIfIdle drops an upload's state once no sample has arrived for
// IdleTTL, and re-arms itself for the remainder otherwise. Keeps the
// state maps bounded for uploads that never reach completion.
func (a *Aggregator) evictIfIdle(uploadID string) {
	sh := a.shardFor(uploadID)
	sh.mu.Lock()
	st, ok := sh.uploads[uploadID]
	sh.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	complete := st.complete
	idle := a.now().Sub(st.lastSeenAt)
	st.mu.Unlock()

	if complete {
		// The completion grace timer owns disposal from here.
		return
	}
	if idle >= a.cfg.IdleTTL {
		a.dispose(uploadID)
		return
	}
	a.schedule(a.cfg.IdleTTL-idle, func() { a.evictIfIdle(uploadID) })
}
