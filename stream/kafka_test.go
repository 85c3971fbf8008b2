package stream

import (
	"context"
	"testing"
	"time"
)

func testKafkaClient() *KafkaClient {
	return &KafkaClient{
		brokers:   []string{"127.0.0.1:1"},
		topic:     "forex-quotes",
		partition: 0,
		readWait:  100 * time.Millisecond,
	}
}

func TestKafkaOpenCursorResumeToken(t *testing.T) {
	k := testKafkaClient()

	cur, err := k.OpenCursor(context.Background(), After("41"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cur != Cursor("42") {
		t.Fatalf("expected cursor 42 after offset 41, got %s", cur)
	}

	if _, err := k.OpenCursor(context.Background(), After("not-a-number")); err == nil {
		t.Fatal("expected error for malformed resume token")
	}
}

func TestKafkaPullRejectsInvalidCursor(t *testing.T) {
	k := testKafkaClient()

	if _, _, err := k.Pull(context.Background(), Cursor("abc"), 10); err == nil {
		t.Fatal("expected error for non-numeric cursor")
	}
}

// Two consumers share one client and the leader connection carries the read
// offset, so a pull must hold the client lock from seek to read. Holding the
// lock here must block a concurrent Pull entirely.
func TestKafkaPullHoldsClientLock(t *testing.T) {
	k := testKafkaClient()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	k.mu.Lock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		k.Pull(ctx, Cursor("0"), 10)
	}()

	select {
	case <-done:
		t.Fatal("Pull proceeded while another pull held the client lock")
	case <-time.After(100 * time.Millisecond):
	}

	k.mu.Unlock()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Pull never completed after the lock was released")
	}
}
