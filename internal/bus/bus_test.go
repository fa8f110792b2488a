package bus

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"listingbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPublishSubscribe(t *testing.T) {
	b := New(4, testLogger())
	b.Publish(domain.Item{MessageID: 1})
	b.Publish(domain.Item{MessageID: 2, GroupKey: "g"})

	ch := b.Subscribe()
	for _, want := range []int{1, 2} {
		select {
		case it := <-ch:
			if it.MessageID != want {
				t.Fatalf("expected %d, got %d", want, it.MessageID)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for item")
		}
	}
}

func TestPublish_DropsWhenFull(t *testing.T) {
	b := New(1, testLogger())
	b.publishTimeout = 20 * time.Millisecond

	b.Publish(domain.Item{MessageID: 1})
	start := time.Now()
	b.Publish(domain.Item{MessageID: 2})
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("publish should wait before dropping")
	}
	if b.Dropped() != 1 {
		t.Fatalf("expected 1 dropped item, got %d", b.Dropped())
	}
	if it := <-b.Subscribe(); it.MessageID != 1 {
		t.Fatalf("expected the first item to survive, got %d", it.MessageID)
	}
}

func TestPublish_DeliveredAfterWait(t *testing.T) {
	b := New(1, testLogger())
	b.Publish(domain.Item{MessageID: 1})

	go func() {
		time.Sleep(20 * time.Millisecond)
		<-b.Subscribe()
	}()
	b.Publish(domain.Item{MessageID: 2})

	if b.Dropped() != 0 {
		t.Fatal("item should have been delivered once space freed up")
	}
	if it := <-b.Subscribe(); it.MessageID != 2 {
		t.Fatalf("expected item 2, got %d", it.MessageID)
	}
}

func TestClose(t *testing.T) {
	b := New(2, testLogger())
	b.Close()
	b.Close() // idempotent

	b.Publish(domain.Item{MessageID: 1}) // must not panic

	if _, ok := <-b.Subscribe(); ok {
		t.Fatal("subscription channel should be closed")
	}
}
