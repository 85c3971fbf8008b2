package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"forexflow/logger"
	"forexflow/models"
)

// QuoteSink appends normalized quotes to per-(symbol, date) CSV objects
// using read-modify-write with create-if-absent. The read-modify-write is
// not atomic: the sink assumes a single writer per key, and replaying the
// same batch appends its rows again. Both are accepted tradeoffs of the
// crash-recovery model.
type QuoteSink struct {
	store ObjectStore
	log   *logger.Log
}

// NewQuoteSink creates a partitioned append sink on the given object store.
func NewQuoteSink(store ObjectStore) *QuoteSink {
	return &QuoteSink{store: store, log: logger.GetLogger()}
}

// Write groups the batch by partition key and extends each partition's
// object with the group's rows. Any object-store failure is returned to the
// caller and halts the consumer run.
func (qs *QuoteSink) Write(ctx context.Context, batch []models.NormalizedQuote) error {
	log := qs.log.WithComponent("quote_sink").WithFields(logger.Fields{
		"record_count": len(batch),
		"operation":    "write",
	})

	groups := make(map[string][]models.NormalizedQuote)
	for _, q := range batch {
		key := q.Partition().Path()
		groups[key] = append(groups[key], q)
	}

	start := time.Now()
	for key, quotes := range groups {
		if err := qs.writeGroup(ctx, key, quotes); err != nil {
			log.WithFields(logger.Fields{"key": key}).WithError(err).Error("failed to write partition group")
			return fmt.Errorf("write partition %s: %w", key, err)
		}
		log.WithFields(logger.Fields{"key": key, "rows": len(quotes)}).Debug("partition group written")
	}

	logger.LogPerformanceEntry(log, "quote_sink", "write_batch", time.Since(start), logger.Fields{
		"partitions": len(groups),
	})
	return nil
}

func (qs *QuoteSink) writeGroup(ctx context.Context, key string, quotes []models.NormalizedQuote) error {
	var sb strings.Builder
	for _, q := range quotes {
		sb.WriteString(q.CSVRow())
		sb.WriteByte('\n')
	}
	rows := sb.String()

	existing, err := qs.store.Get(ctx, key)
	switch {
	case err == nil:
		return qs.store.Put(ctx, key, append(existing, rows...))
	case errors.Is(err, ErrNotFound):
		return qs.store.Put(ctx, key, []byte(rows))
	default:
		return err
	}
}
