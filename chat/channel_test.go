package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"wolfpack-sync/domain"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		rc.Close()
		m.Close()
	})
	return rc
}

func waitLive(t *testing.T, ch *Channel) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ch.State() == StateLive {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("channel did not go live")
}

func waitMessages(t *testing.T, ch *Channel, n int) []domain.ChatMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := ch.Messages(); len(msgs) == n {
			return msgs
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d messages, got %d", n, len(ch.Messages()))
	return nil
}

func TestEmptyChannelGoesLive(t *testing.T) {
	rc := setupRedis(t)
	m := NewManager(rc, nil)
	ch := m.Direct(context.Background(), "c1")
	defer ch.Close()

	waitLive(t, ch)
	if len(ch.Messages()) != 0 {
		t.Fatalf("expected empty channel, got %+v", ch.Messages())
	}
	if ch.Err() != nil {
		t.Fatalf("unexpected error %v", ch.Err())
	}
}

func TestSendDeliversFullList(t *testing.T) {
	rc := setupRedis(t)
	m := NewManager(rc, nil)
	sender := m.Direct(context.Background(), "c1")
	receiver := m.Direct(context.Background(), "c1")
	defer sender.Close()
	defer receiver.Close()
	waitLive(t, sender)
	waitLive(t, receiver)

	alice := domain.User{ID: "u1", Name: "Alice"}
	if err := sender.Send(context.Background(), alice, "howl"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := sender.Send(context.Background(), alice, "again"); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs := waitMessages(t, receiver, 2)
	if msgs[0].Text != "howl" || msgs[1].Text != "again" {
		t.Fatalf("unexpected order %+v", msgs)
	}
	if msgs[0].SenderID != "u1" || msgs[0].SenderName != "Alice" {
		t.Fatalf("unexpected sender fields %+v", msgs[0])
	}
	if msgs[1].Timestamp <= msgs[0].Timestamp {
		t.Fatal("timestamps must be strictly increasing")
	}
}

func TestSendUpdatesConversationIndex(t *testing.T) {
	rc := setupRedis(t)
	m := NewManager(rc, nil)
	ch := m.Direct(context.Background(), "c1")
	defer ch.Close()
	waitLive(t, ch)

	if err := ch.Send(context.Background(), domain.User{ID: "u1", Name: "Alice"}, "howl"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if ch.MetaErr() != nil {
		t.Fatalf("unexpected meta error %v", ch.MetaErr())
	}
	meta, err := m.Meta(context.Background(), "u1", "c1")
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta == nil || meta.LastMessage != "howl" || meta.LastSenderID != "u1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestPackChannelSkipsConversationIndex(t *testing.T) {
	rc := setupRedis(t)
	m := NewManager(rc, nil)
	ch := m.Pack(context.Background(), "wolves")
	defer ch.Close()
	waitLive(t, ch)

	if err := ch.Send(context.Background(), domain.User{ID: "u1", Name: "Alice"}, "pack howl"); err != nil {
		t.Fatalf("send: %v", err)
	}
	keys := rc.Keys(context.Background(), "user_chats/*").Val()
	if len(keys) != 0 {
		t.Fatalf("pack send must not touch the conversation index, got %v", keys)
	}
}

func TestMalformedRecordIsSkipped(t *testing.T) {
	rc := setupRedis(t)
	ctx := context.Background()
	rc.RPush(ctx, "chats/c1", "{broken")
	good, _ := json.Marshal(domain.ChatMessage{SenderID: "u1", Text: "ok", Timestamp: 1})
	rc.RPush(ctx, "chats/c1", good)

	m := NewManager(rc, nil)
	ch := m.Direct(ctx, "c1")
	defer ch.Close()
	waitLive(t, ch)

	msgs := waitMessages(t, ch, 1)
	if msgs[0].Text != "ok" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}
