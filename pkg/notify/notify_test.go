package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chaos-dotcom/colourstream-sub003/pkg/progress"
	"github.com/stretchr/testify/assert"
)

// recordingChannel counts deliveries and can fail a set number of times.
type recordingChannel struct {
	mu        sync.Mutex
	name      string
	delivered []progress.Event
	failures  int
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Deliver(_ context.Context, event progress.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures > 0 {
		c.failures--
		return errors.New("observer unreachable")
	}
	c.delivered = append(c.delivered, event)
	return nil
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.delivered)
}

func TestPublish_DeliversToAllChannels(t *testing.T) {
	a := &recordingChannel{name: "a"}
	b := &recordingChannel{name: "b"}
	pub := NewPublisher(nil, a, b)

	pub.Publish(context.Background(), progress.Event{ID: "upl-1", Percentage: 50})

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestPublish_OneFailingChannelDoesNotBlockOthers(t *testing.T) {
	broken := &recordingChannel{name: "broken", failures: 100}
	healthy := &recordingChannel{name: "healthy"}
	pub := NewPublisher(nil, broken, healthy)

	pub.Publish(context.Background(), progress.Event{ID: "upl-1", Percentage: 50})

	assert.Equal(t, 0, broken.count())
	assert.Equal(t, 1, healthy.count())
}

func TestPublish_CompletionRetriedOnce(t *testing.T) {
	flaky := &recordingChannel{name: "flaky", failures: 1}
	pub := NewPublisher(nil, flaky)

	pub.Publish(context.Background(), progress.Event{ID: "upl-1", Percentage: 100, IsComplete: true})

	assert.Equal(t, 1, flaky.count(), "completion delivery gets a second attempt")
}

func TestPublish_ProgressNotRetried(t *testing.T) {
	flaky := &recordingChannel{name: "flaky", failures: 1}
	pub := NewPublisher(nil, flaky)

	pub.Publish(context.Background(), progress.Event{ID: "upl-1", Percentage: 50})

	assert.Equal(t, 0, flaky.count(), "plain progress is best-effort, no retry")
}

func TestRegister_AddsChannelLater(t *testing.T) {
	pub := NewPublisher(nil)
	late := &recordingChannel{name: "late"}
	pub.Register(late)

	pub.Publish(context.Background(), progress.Event{ID: "upl-1"})
	assert.Equal(t, 1, late.count())
}
