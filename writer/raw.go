package writer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"forexflow/logger"
)

// RawSink lands one pull cycle's raw payload lines as a single new object
// keyed by the cycle's wall-clock date plus a uniquifying epoch suffix.
// Archival writes always create, never read-modify-write.
type RawSink struct {
	store ObjectStore
	now   func() time.Time
	log   *logger.Log
}

// NewRawSink creates an archival sink on the given object store.
func NewRawSink(store ObjectStore) *RawSink {
	return &RawSink{store: store, now: time.Now, log: logger.GetLogger()}
}

// Write joins the cycle's lines and creates one object for them.
func (rs *RawSink) Write(ctx context.Context, batch []string) error {
	now := rs.now().UTC()
	key := fmt.Sprintf("%04d/%02d/%02d/raw-%d.json", now.Year(), int(now.Month()), now.Day(), now.Unix())

	log := rs.log.WithComponent("raw_sink").WithFields(logger.Fields{
		"key":          key,
		"record_count": len(batch),
		"operation":    "write",
	})

	data := strings.Join(batch, "\n")
	if err := rs.store.Put(ctx, key, []byte(data)); err != nil {
		log.WithError(err).Error("failed to write raw object")
		return fmt.Errorf("write raw object %s: %w", key, err)
	}

	log.WithFields(logger.Fields{"bytes": len(data)}).Debug("raw object written")
	return nil
}
