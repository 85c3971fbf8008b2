package stream

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MemoryStream is an in-process Client used for local runs without a stream
// service, and as the test double for the engines. Cursors are decimal
// indexes into the published log.
type MemoryStream struct {
	mu      sync.Mutex
	records []Record
	seq     int64
}

// NewMemoryStream returns an empty in-process stream.
func NewMemoryStream() *MemoryStream {
	return &MemoryStream{}
}

func (m *MemoryStream) Publish(ctx context.Context, partitionKey string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	buf := make([]byte, len(data))
	copy(buf, data)
	m.records = append(m.records, Record{
		PartitionKey: partitionKey,
		Data:         buf,
		Sequence:     strconv.FormatInt(m.seq, 10),
		ArrivedAt:    time.Now(),
	})
	return nil
}

func (m *MemoryStream) OpenCursor(ctx context.Context, pos Position) (Cursor, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if pos.Latest || pos.Token == "" {
		return Cursor(strconv.Itoa(len(m.records))), nil
	}

	seq, err := strconv.ParseInt(pos.Token, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid resume token %q: %w", pos.Token, err)
	}
	for i, r := range m.records {
		if r.Sequence == strconv.FormatInt(seq, 10) {
			return Cursor(strconv.Itoa(i + 1)), nil
		}
	}
	return Cursor("0"), nil
}

func (m *MemoryStream) Pull(ctx context.Context, cur Cursor, maxRecords int) ([]Record, Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, cur, err
	}

	idx, err := strconv.Atoi(string(cur))
	if err != nil || idx < 0 {
		return nil, cur, fmt.Errorf("invalid cursor %q", cur)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if idx >= len(m.records) {
		return nil, cur, nil
	}

	end := idx + maxRecords
	if end > len(m.records) {
		end = len(m.records)
	}
	out := make([]Record, end-idx)
	copy(out, m.records[idx:end])

	return out, Cursor(strconv.Itoa(end)), nil
}

// Len reports how many records have been published.
func (m *MemoryStream) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
