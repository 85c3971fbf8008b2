// Package consumer implements the generic stream consumer engine: it owns a
// cursor into one stream partition, pulls bounded batches, applies a validity
// filter and a transform, and forwards each pull's survivors to a sink in a
// single write.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	appconfig "forexflow/config"
	"forexflow/logger"
	"forexflow/stream"
)

// Filter reports whether a record is valid. Records failing the filter are
// dropped and counted, never retried.
type Filter func(rec stream.Record) bool

// Transform converts a valid record into the sink's input type. A returned
// error drops the record and the cycle continues.
type Transform[T any] func(rec stream.Record) (T, error)

// Sink accepts one pull cycle's transformed records. A write failure is
// fatal to the consumer run.
type Sink[T any] interface {
	Write(ctx context.Context, batch []T) error
}

// Consumer drives the pull/filter/transform/write loop for one partition.
// The cursor lives only in memory; a restart resumes at the configured
// position, so the sink must tolerate re-delivered batches.
type Consumer[T any] struct {
	name      string
	client    stream.Client
	filter    Filter
	transform Transform[T]
	sink      Sink[T]

	recordLimit  int
	pollInterval time.Duration
	backoff      time.Duration
	pullTimeout  time.Duration
	position     stream.Position

	log *logger.Log

	// Metrics
	pullsCompleted   int64
	recordsPulled    int64
	recordsDropped   int64
	recordsForwarded int64
	throttles        int64
}

// New creates a consumer engine. The backoff interval must exceed the poll
// interval so a throttled partition is given room to recover; config
// validation enforces this.
func New[T any](name string, cfg *appconfig.Config, client stream.Client, filter Filter, transform Transform[T], sink Sink[T]) *Consumer[T] {
	pos := stream.Latest()
	if cfg.Consumer.Resume.Position == "sequence" {
		pos = stream.After(cfg.Consumer.Resume.Token)
	}

	pullTimeout := time.Duration(cfg.Consumer.PullTimeoutMs) * time.Millisecond
	if pullTimeout <= 0 {
		pullTimeout = 30 * time.Second
	}

	return &Consumer[T]{
		name:         name,
		client:       client,
		filter:       filter,
		transform:    transform,
		sink:         sink,
		recordLimit:  cfg.Consumer.RecordLimit,
		pollInterval: time.Duration(cfg.Consumer.PollIntervalSec) * time.Second,
		backoff:      time.Duration(cfg.Consumer.BackoffSec) * time.Second,
		pullTimeout:  pullTimeout,
		position:     pos,
		log:          logger.GetLogger(),
	}
}

// Run loops the consumer state machine until the context is cancelled or a
// sink write fails. Fetch-side problems (throttling, pull timeouts,
// transient stream errors) self-heal via backoff; a sink error surfaces to
// the caller because retrying a partial batch could duplicate writes already
// applied.
func (c *Consumer[T]) Run(ctx context.Context) error {
	log := c.log.WithComponent(c.name)

	cursor, err := c.client.OpenCursor(ctx, c.position)
	if err != nil {
		return fmt.Errorf("open cursor: %w", err)
	}
	log.WithFields(logger.Fields{
		"record_limit":  c.recordLimit,
		"poll_interval": c.pollInterval.String(),
		"backoff":       c.backoff.String(),
	}).Info("consumer initialized")

	go c.metricsReporter(ctx)

	for {
		records, next, err := c.pull(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("consumer stopped due to context cancellation")
				return nil
			}
			if errors.Is(err, stream.ErrThrottled) {
				atomic.AddInt64(&c.throttles, 1)
				log.WithFields(logger.Fields{"backoff": c.backoff.String()}).Warn("pull throttled, backing off")
			} else {
				// Timeouts and other transient pull failures take the same
				// backoff path; the cursor has not moved.
				log.WithError(err).Warn("pull failed, backing off")
			}
			if !c.sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		atomic.AddInt64(&c.pullsCompleted, 1)
		atomic.AddInt64(&c.recordsPulled, int64(len(records)))

		batch := make([]T, 0, len(records))
		for _, rec := range records {
			if !c.filter(rec) {
				atomic.AddInt64(&c.recordsDropped, 1)
				log.WithFields(logger.Fields{"sequence": rec.Sequence}).Debug("record failed validity check, dropping")
				continue
			}
			out, err := c.transform(rec)
			if err != nil {
				atomic.AddInt64(&c.recordsDropped, 1)
				log.WithFields(logger.Fields{"sequence": rec.Sequence}).WithError(err).Warn("failed to transform record, dropping")
				continue
			}
			batch = append(batch, out)
		}

		// The whole pull has been filtered and transformed; only now is the
		// cursor allowed to move. A crash before the sink write replays the
		// same records on restart.
		cursor = next

		if len(batch) > 0 {
			batchID := uuid.New().String()
			if err := c.sink.Write(ctx, batch); err != nil {
				log.WithFields(logger.Fields{"batch_id": batchID, "record_count": len(batch)}).
					WithError(err).Error("sink write failed")
				return fmt.Errorf("sink write: %w", err)
			}
			atomic.AddInt64(&c.recordsForwarded, int64(len(batch)))
			logger.RecordFlow(c.name+"_sink", len(batch), 0)
			logger.LogDataFlowEntry(log, "stream", c.name+"_sink", len(batch), "record")
			log.WithFields(logger.Fields{
				"batch_id":     batchID,
				"pulled":       len(records),
				"record_count": len(batch),
			}).Info("batch written to sink")
		}

		if !c.sleep(ctx, c.pollInterval) {
			return nil
		}
	}
}

func (c *Consumer[T]) pull(ctx context.Context, cursor stream.Cursor) ([]stream.Record, stream.Cursor, error) {
	pullCtx, cancel := context.WithTimeout(ctx, c.pullTimeout)
	defer cancel()
	return c.client.Pull(pullCtx, cursor, c.recordLimit)
}

// sleep waits for the given duration and reports false when the context was
// cancelled first.
func (c *Consumer[T]) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Consumer[T]) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.log.LogMetric(c.name, "pulls_completed", atomic.LoadInt64(&c.pullsCompleted), "counter", logger.Fields{})
			c.log.LogMetric(c.name, "records_pulled", atomic.LoadInt64(&c.recordsPulled), "counter", logger.Fields{})
			c.log.LogMetric(c.name, "records_dropped", atomic.LoadInt64(&c.recordsDropped), "counter", logger.Fields{})
			c.log.LogMetric(c.name, "records_forwarded", atomic.LoadInt64(&c.recordsForwarded), "counter", logger.Fields{})
			c.log.LogMetric(c.name, "throttles", atomic.LoadInt64(&c.throttles), "counter", logger.Fields{})
		}
	}
}
