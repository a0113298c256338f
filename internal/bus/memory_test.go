package bus

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBusFanOut(t *testing.T) {
	b := NewMemoryBus(nil)
	ctx := context.Background()

	var first, second [][]byte
	if err := b.Subscribe(ctx, TopicAll, func(_ string, payload []byte) {
		first = append(first, payload)
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Subscribe(ctx, TopicAll, func(_ string, payload []byte) {
		second = append(second, payload)
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.Publish(ctx, TopicAll, []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("fan-out mismatch: %d/%d, want 1/1", len(first), len(second))
	}
	if string(first[0]) != "hello" {
		t.Fatalf("payload = %q", first[0])
	}
}

func TestMemoryBusTopicIsolation(t *testing.T) {
	b := NewMemoryBus(nil)
	ctx := context.Background()

	var got [][]byte
	if err := b.Subscribe(ctx, TopicPacket("pk1"), func(_ string, payload []byte) {
		got = append(got, payload)
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.Publish(ctx, TopicPacket("pk2"), []byte("other")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("received message for a different packet topic")
	}

	if err := b.Publish(ctx, TopicPacket("pk1"), []byte("mine")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
}

func TestMemoryBusUnsubscribeOnCancel(t *testing.T) {
	b := NewMemoryBus(nil)
	ctx, cancel := context.WithCancel(context.Background())

	delivered := make(chan struct{}, 8)
	if err := b.Subscribe(ctx, TopicAll, func(string, []byte) {
		delivered <- struct{}{}
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.Publish(context.Background(), TopicAll, []byte("one")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	<-delivered

	cancel()
	// removal happens on a goroutine; poll until the subscription is gone
	for i := 0; i < 100; i++ {
		time.Sleep(time.Millisecond)
		if err := b.Publish(context.Background(), TopicAll, []byte("two")); err != nil {
			t.Fatalf("publish: %v", err)
		}
		select {
		case <-delivered:
		default:
			return
		}
	}
	t.Fatalf("subscription still receiving after cancel")
}
