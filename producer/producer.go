// Package producer polls the external quote source across a fixed set of
// instruments and publishes each payload onto the stream, one record per
// instrument per cycle.
package producer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	appconfig "forexflow/config"
	"forexflow/logger"
	"forexflow/stream"
)

// FetchFunc returns one raw payload for an instrument.
type FetchFunc func(ctx context.Context, instrument string) ([]byte, error)

// Producer runs the poll/publish cycle.
type Producer struct {
	config       *appconfig.Config
	client       stream.Client
	fetch        FetchFunc
	instruments  []string
	partitionKey string
	interval     time.Duration

	ctx     context.Context
	stop    chan struct{}
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	// Metrics
	cyclesRun        int64
	fetchErrors      int64
	recordsPublished int64
	publishErrors    int64
}

// NewProducer creates a Producer publishing to the given stream client with
// the given fetch function.
func NewProducer(cfg *appconfig.Config, client stream.Client, fetch FetchFunc) *Producer {
	return &Producer{
		config:       cfg,
		client:       client,
		fetch:        fetch,
		instruments:  cfg.Producer.Instruments,
		partitionKey: cfg.Producer.PartitionKey,
		interval:     time.Duration(cfg.Producer.PollIntervalSec) * time.Second,
		wg:           &sync.WaitGroup{},
		log:          logger.GetLogger(),
	}
}

// Start launches the poll loop. It returns an error if the producer is
// already running.
func (p *Producer) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("producer already running")
	}
	p.running = true
	p.ctx = ctx
	p.stop = make(chan struct{})
	p.mu.Unlock()

	log := p.log.WithComponent("producer").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"instruments": p.instruments,
		"interval":    p.interval.String(),
	}).Info("starting producer")

	p.wg.Add(1)
	go p.run()

	go p.metricsReporter(ctx)

	log.Info("producer started successfully")
	return nil
}

// Stop halts the poll loop and waits for it to finish. It does not require
// the start context to be cancelled first, and is a no-op when the producer
// is not running.
func (p *Producer) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stop)
	p.mu.Unlock()

	p.log.WithComponent("producer").Info("stopping producer")
	p.wg.Wait()
	p.log.WithComponent("producer").Info("producer stopped")
}

func (p *Producer) run() {
	defer p.wg.Done()

	log := p.log.WithComponent("producer").WithFields(logger.Fields{"worker": "poll_loop"})
	log.Info("starting poll loop")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			log.Info("poll loop stopped due to context cancellation")
			return
		case <-p.stop:
			log.Info("poll loop stopped")
			return
		case <-timer.C:
			start := time.Now()
			p.runCycle()
			atomic.AddInt64(&p.cyclesRun, 1)

			duration := time.Since(start)
			if duration > p.interval {
				log.WithFields(logger.Fields{
					"duration": duration.Milliseconds(),
					"interval": p.interval.Milliseconds(),
				}).Warn("cycle took longer than poll interval")
			}
			timer.Reset(p.interval)
		}
	}
}

// runCycle fetches every instrument concurrently, joins, then publishes each
// successful payload as one stream record. A fetch failure for one
// instrument never aborts the others; the next cycle retries naturally.
func (p *Producer) runCycle() {
	cycleID := uuid.New().String()
	log := p.log.WithComponent("producer").WithFields(logger.Fields{
		"cycle_id":  cycleID,
		"operation": "run_cycle",
	})

	log.Debug("starting poll cycle")
	start := time.Now()

	payloads := make([][]byte, len(p.instruments))

	var wg sync.WaitGroup
	for i, instrument := range p.instruments {
		wg.Add(1)
		go func(idx int, inst string) {
			defer wg.Done()
			data, err := p.fetch(p.ctx, inst)
			if err != nil {
				atomic.AddInt64(&p.fetchErrors, 1)
				log.WithFields(logger.Fields{"instrument": inst}).WithError(err).Error("failed to fetch quote")
				return
			}
			payloads[idx] = data
		}(i, instrument)
	}
	wg.Wait()

	published := 0
	for i, data := range payloads {
		if data == nil {
			continue
		}
		if err := p.client.Publish(p.ctx, p.partitionKey, data); err != nil {
			atomic.AddInt64(&p.publishErrors, 1)
			log.WithFields(logger.Fields{"instrument": p.instruments[i]}).WithError(err).Error("failed to publish record")
			continue
		}
		published++
		atomic.AddInt64(&p.recordsPublished, 1)
		logger.RecordFlow("producer_publish", 1, len(data))
	}

	logger.LogDataFlowEntry(log, "quote_source", "stream", published, "quote_payload")
	logger.LogPerformanceEntry(log, "producer", "run_cycle", time.Since(start), logger.Fields{
		"instruments": len(p.instruments),
		"published":   published,
	})
}

func (p *Producer) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.log.LogMetric("producer", "records_published", atomic.LoadInt64(&p.recordsPublished), "counter", logger.Fields{})
			p.log.LogMetric("producer", "fetch_errors", atomic.LoadInt64(&p.fetchErrors), "counter", logger.Fields{})
			p.log.LogMetric("producer", "publish_errors", atomic.LoadInt64(&p.publishErrors), "counter", logger.Fields{})
		}
	}
}
