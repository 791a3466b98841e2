package chat

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"wolfpack-sync/domain"
)

// Realtime store paths, mirroring the original database layout.
func directPath(chatID string) string { return "chats/" + chatID }

func packPath(packID string) string { return "packs/" + packID + "/messages" }

func territoryPath(territory string) string { return "territories/" + territory + "/messages" }

func notifyChannel(path string) string { return "chat-updates:" + path }

func userChatKey(userID, chatID string) string {
	return "user_chats/" + userID + "/" + chatID
}

// Manager opens chat channels against the realtime store.
type Manager struct {
	rc  *redis.Client
	log *log.Logger
}

// NewManager creates a chat manager.
func NewManager(rc *redis.Client, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Manager{rc: rc, log: logger}
}

// Direct opens a 1:1 conversation channel.
func (m *Manager) Direct(ctx context.Context, chatID string) *Channel {
	return Open(ctx, m.rc, directPath(chatID), chatID, m.log)
}

// Pack opens a pack's group channel. Pack channels keep no per-user
// conversation index.
func (m *Manager) Pack(ctx context.Context, packID string) *Channel {
	return Open(ctx, m.rc, packPath(packID), "", m.log)
}

// Territory opens a territory channel.
func (m *Manager) Territory(ctx context.Context, territory string) *Channel {
	return Open(ctx, m.rc, territoryPath(territory), "", m.log)
}

// Meta reads a user's conversation index entry, nil when absent.
func (m *Manager) Meta(ctx context.Context, userID, chatID string) (*domain.ChatMeta, error) {
	data, err := m.rc.Get(ctx, userChatKey(userID, chatID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var meta domain.ChatMeta
	if err := sonic.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

var lastTimestamp int64

// nextTimestamp returns strictly increasing millisecond timestamps so
// messages written in one process never share an ordering key.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixMilli()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}
