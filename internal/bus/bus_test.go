package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	received := make(chan *domain.Message, 1)
	_, err := b.Subscribe(ctx, domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, domain.TopicDecision, []byte(`{"id":"d-1"}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Topic != domain.TopicDecision {
			t.Errorf("topic = %s", msg.Topic)
		}
		if string(msg.Payload) != `{"id":"d-1"}` {
			t.Errorf("payload = %s", msg.Payload)
		}
		if msg.ID == "" || msg.Timestamp == 0 {
			t.Errorf("message envelope incomplete: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestChannelBusTopicIsolation(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	_, err := b.Subscribe(ctx, domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
		mu.Lock()
		got = append(got, msg.Topic)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	b.Publish(ctx, domain.TopicDecision, []byte("a"))
	b.Publish(ctx, domain.TopicAlert, []byte("b"))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != domain.TopicAlert {
		t.Errorf("received topics = %v, want only alert topic", got)
	}
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	received := make(chan struct{}, 10)
	sub, err := b.Subscribe(ctx, domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		received <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if sub.Topic() != domain.TopicDecision {
		t.Errorf("subscription topic = %s", sub.Topic())
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	b.Publish(ctx, domain.TopicDecision, []byte("after"))
	select {
	case <-received:
		t.Error("handler invoked after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelBusClose(t *testing.T) {
	b := NewChannelBus(10)
	ctx := context.Background()

	if err := b.Ping(ctx); err != nil {
		t.Errorf("ping before close failed: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	if err := b.Ping(ctx); err == nil {
		t.Error("ping after close should fail")
	}
	if err := b.Publish(ctx, domain.TopicDecision, []byte("x")); err == nil {
		t.Error("publish after close should fail")
	}
	if _, err := b.Subscribe(ctx, domain.TopicDecision, func(context.Context, *domain.Message) error { return nil }); err == nil {
		t.Error("subscribe after close should fail")
	}
}

func TestChannelBusCloseDuringPublish(t *testing.T) {
	b := NewChannelBus(1)
	ctx := context.Background()

	// A tiny buffer keeps publishers parked on the send select while
	// Close tears the bus down.
	if _, err := b.Subscribe(ctx, domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		time.Sleep(time.Millisecond)
		return nil
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				if err := b.Publish(ctx, domain.TopicDecision, []byte("x")); err != nil {
					return
				}
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	if err := b.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	wg.Wait()
}

func TestNewSelectsImplementation(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
	if err != nil {
		t.Fatalf("channel bus: %v", err)
	}
	defer b.Close()
	if _, ok := b.(*ChannelBus); !ok {
		t.Errorf("expected ChannelBus, got %T", b)
	}

	if _, err := New(domain.EventBusConfig{Type: "bogus"}); err == nil {
		t.Errorf("expected error for unsupported bus type")
	}
}
