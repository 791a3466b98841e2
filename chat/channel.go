// Package chat implements the realtime chat channels: 1:1 conversations,
// pack channels and territory channels backed by the realtime store. Every
// write pushes a notification; every subscriber re-reads the entire message
// list and replaces its local copy, so there is no per-message merge.
package chat

import (
	"context"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"wolfpack-sync/domain"
)

// Channel states. A failed initial read and a legitimately empty channel
// both present as live with an empty list; Err carries the read failure for
// callers that want to tell them apart.
const (
	StateIdle int32 = iota
	StateLoading
	StateLive
)

// Channel is one live chat subscription.
type Channel struct {
	rc     *redis.Client
	path   string
	chatID string
	log    *log.Logger

	mu      sync.Mutex
	state   int32
	msgs    []domain.ChatMessage
	lastErr error
	metaErr error

	cancel  context.CancelFunc
	updates chan struct{}
	done    chan struct{}
}

// Open starts the subscription for a path. The initial full read doubles as
// both snapshot and the start of the live feed.
func Open(ctx context.Context, rc *redis.Client, path, chatID string, logger *log.Logger) *Channel {
	if logger == nil {
		logger = log.StandardLogger()
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Channel{
		rc:      rc,
		path:    path,
		chatID:  chatID,
		log:     logger,
		state:   StateIdle,
		cancel:  cancel,
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go c.run(ctx)
	return c
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	c.setState(StateLoading)
	sub := c.rc.Subscribe(ctx, notifyChannel(c.path))
	defer sub.Close()

	c.refresh(ctx)
	c.setState(StateLive)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			c.refresh(ctx)
		}
	}
}

// refresh replaces the local list with the full current list.
func (c *Channel) refresh(ctx context.Context) {
	items, err := c.rc.LRange(ctx, c.path, 0, -1).Result()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.WithError(err).WithField("path", c.path).Error("chat: read failed")
		c.mu.Lock()
		c.msgs = nil
		c.lastErr = err
		c.mu.Unlock()
		c.signal()
		return
	}
	msgs := make([]domain.ChatMessage, 0, len(items))
	for _, item := range items {
		var m domain.ChatMessage
		if err := sonic.Unmarshal([]byte(item), &m); err != nil {
			c.log.WithError(err).Warn("chat: dropping malformed message record")
			continue
		}
		msgs = append(msgs, m)
	}
	c.mu.Lock()
	c.msgs = msgs
	c.lastErr = nil
	c.mu.Unlock()
	c.signal()
}

func (c *Channel) signal() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

func (c *Channel) setState(s int32) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.signal()
}

// Messages returns a copy of the current message list.
func (c *Channel) Messages() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ChatMessage(nil), c.msgs...)
}

// State returns the channel lifecycle state.
func (c *Channel) State() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the last read failure, nil when the list is authoritative.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// MetaErr returns the last conversation-index update failure.
func (c *Channel) MetaErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metaErr
}

// Updates signals after each list replacement, coalesced.
func (c *Channel) Updates() <-chan struct{} { return c.updates }

// Close ends the subscription.
func (c *Channel) Close() {
	c.cancel()
	<-c.done
}

// Send appends a message record and notifies subscribers, then runs the
// second phase: updating the sender's conversation index with its own retry
// and error state. A failed index update never fails the send.
func (c *Channel) Send(ctx context.Context, sender domain.User, text string) error {
	msg := domain.ChatMessage{
		SenderID:   sender.ID,
		SenderName: sender.Name,
		Text:       text,
		Timestamp:  nextTimestamp(),
	}
	payload, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	if err := c.rc.RPush(ctx, c.path, payload).Err(); err != nil {
		return err
	}
	if err := c.rc.Publish(ctx, notifyChannel(c.path), "update").Err(); err != nil {
		c.log.WithError(err).WithField("path", c.path).Error("chat: notify failed")
	}

	if c.chatID != "" {
		metaErr := c.updateMeta(ctx, sender.ID, msg)
		if metaErr != nil {
			metaErr = c.updateMeta(ctx, sender.ID, msg)
		}
		c.mu.Lock()
		c.metaErr = metaErr
		c.mu.Unlock()
		if metaErr != nil {
			c.log.WithError(metaErr).WithField("chat", c.chatID).Warn("chat: conversation index update failed")
		}
	}
	return nil
}

// updateMeta writes the last-message metadata to the sender's conversation
// index.
func (c *Channel) updateMeta(ctx context.Context, userID string, msg domain.ChatMessage) error {
	meta := domain.ChatMeta{
		ChatID:          c.chatID,
		LastMessage:     msg.Text,
		LastSenderID:    msg.SenderID,
		LastMessageTime: msg.Timestamp,
	}
	payload, err := sonic.Marshal(meta)
	if err != nil {
		return err
	}
	return c.rc.Set(ctx, userChatKey(userID, c.chatID), payload, 0).Err()
}
