package stream

import (
	"context"
	"testing"
)

func TestMemoryStreamPublishOrder(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStream()

	cur, err := ms.OpenCursor(ctx, Latest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, payload := range []string{"a", "b", "c"} {
		if err := ms.Publish(ctx, "pk", []byte(payload)); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	records, next, err := ms.Pull(ctx, cur, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(records[i].Data) != want {
			t.Fatalf("record %d: expected %q, got %q", i, want, records[i].Data)
		}
	}
	if next == cur {
		t.Fatal("cursor did not advance")
	}

	// Nothing new behind the advanced cursor.
	records, _, err = ms.Pull(ctx, next, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty pull, got %d records", len(records))
	}
}

func TestMemoryStreamLatestSkipsBacklog(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStream()

	if err := ms.Publish(ctx, "pk", []byte("backlog")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	cur, err := ms.OpenCursor(ctx, Latest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records, _, err := ms.Pull(ctx, cur, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("LATEST cursor must skip backlog, got %d records", len(records))
	}
}

func TestMemoryStreamResumeToken(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStream()

	for _, payload := range []string{"a", "b", "c"} {
		if err := ms.Publish(ctx, "pk", []byte(payload)); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	cur, err := ms.OpenCursor(ctx, Latest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ms.Publish(ctx, "pk", []byte("d")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	records, _, err := ms.Pull(ctx, cur, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(records) != 1 || string(records[0].Data) != "d" {
		t.Fatalf("unexpected records %v", records)
	}

	// Resuming after record "b" replays "c" and "d".
	cur, err = ms.OpenCursor(ctx, After("2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records, _, err = ms.Pull(ctx, cur, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(records) != 2 || string(records[0].Data) != "c" || string(records[1].Data) != "d" {
		t.Fatalf("unexpected records after resume: %v", records)
	}
}

func TestMemoryStreamMaxRecords(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStream()

	cur, _ := ms.OpenCursor(ctx, Latest())
	for i := 0; i < 5; i++ {
		if err := ms.Publish(ctx, "pk", []byte{byte('a' + i)}); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	records, next, err := ms.Pull(ctx, cur, 2)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	records, _, err = ms.Pull(ctx, next, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected remaining 3 records, got %d", len(records))
	}
}
