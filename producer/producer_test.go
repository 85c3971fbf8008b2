package producer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appconfig "forexflow/config"
	"forexflow/stream"
)

func testProducerConfig(instruments []string) *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Producer.Instruments = instruments
	cfg.Producer.PartitionKey = "quotes"
	cfg.Producer.PollIntervalSec = 60
	return cfg
}

func TestProducerCyclePublishesEveryInstrument(t *testing.T) {
	instruments := []string{"EUR_USD", "USD_CAD", "GBP_USD"}
	ms := stream.NewMemoryStream()

	fetch := func(ctx context.Context, instrument string) ([]byte, error) {
		return []byte(instrument), nil
	}

	p := NewProducer(testProducerConfig(instruments), ms, fetch)
	p.ctx = context.Background()
	p.runCycle()

	if ms.Len() != len(instruments) {
		t.Fatalf("expected %d published records, got %d", len(instruments), ms.Len())
	}

	records, _, err := ms.Pull(context.Background(), stream.Cursor("0"), 10)
	if err != nil {
		t.Fatalf("failed to pull records: %v", err)
	}
	for i, rec := range records {
		if string(rec.Data) != instruments[i] {
			t.Fatalf("record %d: expected %s, got %s", i, instruments[i], rec.Data)
		}
	}
}

func TestProducerCycleSurvivesFetchFailure(t *testing.T) {
	instruments := []string{"EUR_USD", "USD_CAD", "GBP_USD"}
	ms := stream.NewMemoryStream()

	fetch := func(ctx context.Context, instrument string) ([]byte, error) {
		if instrument == "USD_CAD" {
			return nil, errors.New("gateway timeout")
		}
		return []byte(instrument), nil
	}

	p := NewProducer(testProducerConfig(instruments), ms, fetch)
	p.ctx = context.Background()
	p.runCycle()

	if ms.Len() != 2 {
		t.Fatalf("expected 2 published records, got %d", ms.Len())
	}

	records, _, _ := ms.Pull(context.Background(), stream.Cursor("0"), 10)
	for _, rec := range records {
		if string(rec.Data) == "USD_CAD" {
			t.Fatal("failed instrument must not be published")
		}
	}
	if n := p.fetchErrors; n != 1 {
		t.Fatalf("expected 1 fetch error, got %d", n)
	}
}

func TestProducerCycleFetchesConcurrently(t *testing.T) {
	instruments := []string{"EUR_USD", "USD_CAD", "GBP_USD", "USD_JPY"}
	ms := stream.NewMemoryStream()

	// Every fetch blocks until all of them have started; a sequential
	// producer would never get past the first instrument.
	var entered sync.WaitGroup
	entered.Add(len(instruments))
	release := make(chan struct{})

	go func() {
		entered.Wait()
		close(release)
	}()

	fetch := func(ctx context.Context, instrument string) ([]byte, error) {
		entered.Done()
		select {
		case <-release:
			return []byte(instrument), nil
		case <-time.After(5 * time.Second):
			return nil, errors.New("fetch never released")
		}
	}

	p := NewProducer(testProducerConfig(instruments), ms, fetch)
	p.ctx = context.Background()
	p.runCycle()

	if ms.Len() != len(instruments) {
		t.Fatalf("expected %d published records, got %d", len(instruments), ms.Len())
	}
}

func TestProducerStopWithoutCancel(t *testing.T) {
	ms := stream.NewMemoryStream()
	fetch := func(ctx context.Context, instrument string) ([]byte, error) {
		return []byte(instrument), nil
	}
	p := NewProducer(testProducerConfig([]string{"EUR_USD"}), ms, fetch)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for ms.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("initial cycle never published a record")
		}
		time.Sleep(10 * time.Millisecond)
	}

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return without a context cancel")
	}

	// A second Stop on an already-stopped producer returns immediately.
	p.Stop()
}

func TestProducerStartTwice(t *testing.T) {
	ms := stream.NewMemoryStream()
	fetch := func(ctx context.Context, instrument string) ([]byte, error) {
		return []byte(instrument), nil
	}
	p := NewProducer(testProducerConfig([]string{"EUR_USD"}), ms, fetch)

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Fatal("second start should fail while running")
	}

	deadline := time.Now().Add(5 * time.Second)
	for ms.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("initial cycle never published a record")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	p.Stop()
}
