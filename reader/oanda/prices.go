// Package oanda fetches spot currency quotes from an OANDA-style prices
// endpoint. The pipeline only depends on it as a function returning one raw
// payload per instrument.
package oanda

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	appconfig "forexflow/config"
	"forexflow/logger"
)

// Client polls the prices endpoint for one instrument at a time.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	log        *logger.Log
}

// NewClient builds a quote client from the source configuration. Requests
// are bounded by the configured timeout and paced by a token bucket so a
// large instrument set cannot burst past the provider's rate limit.
func NewClient(cfg *appconfig.Config) *Client {
	log := logger.GetLogger()

	timeout := time.Duration(cfg.Source.Oanda.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rps := cfg.Source.Oanda.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Source.Oanda.BurstSize
	if burst <= 0 {
		burst = rps
	}

	log.WithComponent("oanda_client").WithFields(logger.Fields{
		"url":     cfg.Source.Oanda.URL,
		"timeout": timeout.String(),
		"rps":     rps,
	}).Info("oanda client initialized")

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.Source.Oanda.URL,
		apiKey:     cfg.Source.Oanda.APIKey,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		log:        log,
	}
}

// FetchPrices returns the raw quote payload for one instrument pair,
// e.g. "EUR_USD". The payload is passed through unparsed; validation
// happens on the consumer side.
func (c *Client) FetchPrices(ctx context.Context, instrument string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := fmt.Sprintf("%s/v1/prices?instruments=%s", c.baseURL, instrument)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("X-Accept-Datetime-Format", "UNIX")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	logger.LogPerformanceEntry(c.log.WithComponent("oanda_client"), "oanda_client", "fetch_prices",
		time.Since(start), logger.Fields{"instrument": instrument})

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}
