// Package notify fans significant progress events out to observer
// channels: the live operator dashboard and the outbound chat bot.
// Delivery is best-effort by contract — a notification failure is logged
// and swallowed, never allowed to fail the upload it describes.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/chaos-dotcom/colourstream-sub003/pkg/progress"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/uplog"
)

// Channel delivers one event to one kind of observer.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, event progress.Event) error
}

// deliverTimeout bounds one channel's delivery attempt so a hung observer
// can't pin a publish forever.
const deliverTimeout = 10 * time.Second

// Publisher distributes events to all registered channels, each attempted
// independently: one unreachable channel never blocks the others.
type Publisher struct {
	logger *uplog.Logger

	mu       sync.RWMutex
	channels []Channel
}

// NewPublisher creates a Publisher over the given channels.
func NewPublisher(logger *uplog.Logger, channels ...Channel) *Publisher {
	if logger == nil {
		logger = uplog.NewDefault()
	}
	return &Publisher{logger: logger, channels: channels}
}

// Register adds a channel.
func (p *Publisher) Register(ch Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, ch)
}

// Publish delivers event to every channel concurrently and waits for the
// attempts to finish. Failures are logged, and a failed completion
// delivery gets one immediate retry: completion must reach each channel
// at-least-once if the channel is reachable at all.
func (p *Publisher) Publish(ctx context.Context, event progress.Event) {
	p.mu.RLock()
	channels := append([]Channel(nil), p.channels...)
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			p.deliver(ctx, ch, event)
		}(ch)
	}
	wg.Wait()
}

func (p *Publisher) deliver(ctx context.Context, ch Channel, event progress.Event) {
	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
		defer cancel()
		return ch.Deliver(callCtx, event)
	}

	err := attempt()
	if err != nil && event.IsComplete {
		err = attempt()
	}
	if err != nil {
		p.logger.Warn("notification delivery failed",
			"channel", ch.Name(), "uploadId", event.ID, "complete", event.IsComplete, "error", err.Error())
	}
}
