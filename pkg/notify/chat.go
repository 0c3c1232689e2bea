package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chaos-dotcom/colourstream-sub003/pkg/kv"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/progress"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/uplog"
)

// ChatAPI is the outward bot surface the chat channel drives. The real
// implementation is TelegramClient; tests substitute a recorder.
type ChatAPI interface {
	// SendMessage posts a new message and returns its external identity.
	SendMessage(ctx context.Context, text string) (string, error)

	// EditMessage rewrites an existing message in place.
	EditMessage(ctx context.Context, messageID, text string) error
}

const (
	// anchorTTL bounds how long an in-flight upload may keep its message
	// anchor. Uploads lasting longer re-anchor onto a fresh message.
	anchorTTL = 48 * time.Hour

	anchorPrefix = "notify:chat:anchor:"
)

// Chat delivers progress to an operator chat with edit-in-place
// semantics: events for one upload update a single outward message. The
// uploadId→messageId anchor lives in an injectable kv store with a
// grace-period TTL after completion, not in a process-global map.
type Chat struct {
	api     ChatAPI
	anchors kv.Store
	grace   time.Duration
	logger  *uplog.Logger
}

// NewChat creates the chat channel. grace is how long the message anchor
// survives after completion, long enough for a late in-flight edit to
// land before the mapping disappears.
func NewChat(api ChatAPI, anchors kv.Store, grace time.Duration, logger *uplog.Logger) *Chat {
	if logger == nil {
		logger = uplog.NewDefault()
	}
	if grace <= 0 {
		grace = progress.DefaultGrace
	}
	return &Chat{api: api, anchors: anchors, grace: grace, logger: logger}
}

// Name implements Channel.
func (c *Chat) Name() string { return "chat" }

// Deliver implements Channel. The edit-then-fallback is an explicit
// two-step compensating action: try the anchored edit; if the target
// message is gone (deleted out-of-band), send a fresh message and
// re-anchor future edits to it.
func (c *Chat) Deliver(ctx context.Context, event progress.Event) error {
	text := formatChatMessage(event)
	anchorKey := anchorPrefix + event.ID
	ttl := anchorTTL
	if event.IsComplete {
		ttl = c.grace
	}

	anchor, err := c.anchors.Get(ctx, anchorKey)
	if err == nil {
		editErr := c.api.EditMessage(ctx, string(anchor), text)
		if editErr == nil {
			if event.IsComplete {
				// Shorten the anchor's life to the grace window.
				return c.anchors.Set(ctx, anchorKey, anchor, ttl)
			}
			return nil
		}

		c.logger.Warn("chat edit failed, falling back to a fresh message",
			"uploadId", event.ID, "messageId", string(anchor), "error", editErr.Error())
	} else if !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("load chat anchor for upload %s: %w", event.ID, err)
	}

	messageID, err := c.api.SendMessage(ctx, text)
	if err != nil {
		return fmt.Errorf("send chat message for upload %s: %w", event.ID, err)
	}

	if err := c.anchors.Set(ctx, anchorKey, []byte(messageID), ttl); err != nil {
		return fmt.Errorf("anchor chat message for upload %s: %w", event.ID, err)
	}
	return nil
}

// formatChatMessage renders one event as the operator-facing message text.
// Completed uploads keep a terminal message in the channel; only the
// anchor mapping expires.
func formatChatMessage(event progress.Event) string {
	if event.IsComplete {
		return fmt.Sprintf("✅ %s — %s / %s uploaded (%s)",
			event.FileName, event.ClientName, event.ProjectName, formatBytes(event.Size))
	}

	msg := fmt.Sprintf("⬆️ %s — %s / %s: %.1f%% of %s",
		event.FileName, event.ClientName, event.ProjectName, event.Percentage, formatBytes(event.Size))
	if event.Speed > 0 {
		msg += fmt.Sprintf(" at %s/s", formatBytes(int64(event.Speed)))
	}
	return msg
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Ensure Chat implements Channel.
var _ Channel = (*Chat)(nil)
