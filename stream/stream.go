// Package stream defines the client contract for the partitioned quote
// stream consumed by the producer and consumer engines, plus the Kinesis,
// Kafka and in-memory backends implementing it.
package stream

import (
	"context"
	"errors"
	"time"
)

// ErrThrottled reports that the service rejected a pull because the caller
// exceeded its provisioned throughput. The cursor remains valid for a retry.
var ErrThrottled = errors.New("stream: throughput exceeded")

// Record is a single immutable payload read back from the stream.
type Record struct {
	PartitionKey string
	Data         []byte
	Sequence     string
	ArrivedAt    time.Time
}

// Cursor is an opaque position marker for resuming reads from a partition.
// It is owned by exactly one consumer instance and must not be shared.
type Cursor string

// Position selects where a newly opened cursor starts reading.
type Position struct {
	Latest bool
	// Token resumes reading after an explicit sequence number or offset.
	// Ignored when Latest is set.
	Token string
}

// Latest positions a cursor at the tip of the partition.
func Latest() Position { return Position{Latest: true} }

// After positions a cursor just past the given sequence token.
func After(token string) Position { return Position{Token: token} }

// Client is the minimal contract for publishing to and reading from one
// ordered stream partition.
type Client interface {
	// Publish appends one record under the given partition key. Best effort;
	// transient failures are returned to the caller.
	Publish(ctx context.Context, partitionKey string, data []byte) error

	// OpenCursor returns a cursor positioned per the given Position.
	OpenCursor(ctx context.Context, pos Position) (Cursor, error)

	// Pull returns up to maxRecords records in publish order together with
	// the cursor for the next pull. Returns ErrThrottled when rate limited.
	Pull(ctx context.Context, cur Cursor, maxRecords int) ([]Record, Cursor, error)
}
