package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"permitdesk.org/internal/identity"
	"permitdesk.org/internal/notify"
)

func TestPublishReachesScopeSubscribers(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	unitCh := b.Subscribe(ctx, notify.UnitScope(identity.UnitCompliance))
	userCh := b.Subscribe(ctx, notify.UserScope("user-1"))

	n := notify.Notification{ID: "n1", TargetUnit: identity.UnitCompliance}
	if err := b.Publish(t.Context(), n); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-unitCh:
		if got.ID != "n1" {
			t.Fatalf("unexpected notification: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("unit subscriber did not receive notification")
	}

	select {
	case got := <-userCh:
		t.Fatalf("user subscriber must not receive unit notification: %+v", got)
	default:
	}
}

func TestPublishFansOutToAllSubscribersOfScope(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	first := b.Subscribe(ctx, notify.UserScope("user-1"))
	second := b.Subscribe(ctx, notify.UserScope("user-1"))

	if err := b.Publish(t.Context(), notify.Notification{ID: "n1", TargetUserID: "user-1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, ch := range []<-chan notify.Notification{first, second} {
		select {
		case got := <-ch:
			if got.ID != "n1" {
				t.Fatalf("unexpected notification: %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive notification")
		}
	}
}

func TestCancelClosesChannelAndUnsubscribes(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(t.Context())

	ch := b.Subscribe(ctx, notify.UserScope("user-1"))
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				// Closed; later publishes must not panic.
				if err := b.Publish(t.Context(), notify.Notification{ID: "n2", TargetUserID: "user-1"}); err != nil {
					t.Fatalf("Publish after unsubscribe: %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("channel was not closed after context cancel")
		}
	}
}

func TestRelayRepublishesDecodedMessages(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	sub := b.Subscribe(ctx, notify.UserScope("user-1"))

	payload, err := json.Marshal(notify.Notification{ID: "n1", TargetUserID: "user-1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	msgs := make(chan *redis.Message, 2)
	msgs <- &redis.Message{Channel: "permitdesk:notify:user:user-1", Payload: "not json"}
	msgs <- &redis.Message{Channel: "permitdesk:notify:user:user-1", Payload: string(payload)}
	close(msgs)

	relay(ctx, msgs, b)

	select {
	case got := <-sub:
		if got.ID != "n1" {
			t.Fatalf("unexpected notification: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("relayed notification never reached the subscriber")
	}
	select {
	case got := <-sub:
		t.Fatalf("undecodable payload must be dropped, got %+v", got)
	default:
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	// Never read from the channel; fill past its buffer.
	_ = b.Subscribe(ctx, notify.UserScope("user-1"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_ = b.Publish(context.Background(), notify.Notification{ID: "n", TargetUserID: "user-1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}
