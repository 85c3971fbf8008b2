// Package processor holds the record validity filter and the two transforms
// the consumers are configured with: raw archival and base-currency
// normalization.
package processor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"forexflow/models"
	"forexflow/stream"
)

// ValidPricePayload reports whether a stream record parses as a quote
// envelope with at least one price entry. Malformed provider responses
// (error bodies, empty price lists) fail here and are dropped by the engine.
func ValidPricePayload(rec stream.Record) bool {
	env, err := models.DecodeEnvelope(rec.Data)
	if err != nil {
		return false
	}
	return len(env.Prices) > 0
}

// ArchiveLine is the archival transform: the payload serialized back to a
// single compact text line, suitable for joining into one storage object per
// pull cycle.
func ArchiveLine(rec stream.Record) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, rec.Data); err != nil {
		return "", fmt.Errorf("compact payload: %w", err)
	}
	return buf.String(), nil
}

// NormalizeQuote returns the processed transform for the given reference
// currency. The first price entry of the envelope is decoded and rewritten
// so its prices are expressed relative to the reference: a pair quoted
// reference-first ("USD_EUR") has bid and ask inverted and takes its symbol
// from the characters after the separator; otherwise the symbol is the first
// three characters and the prices pass through unchanged.
func NormalizeQuote(base string) func(rec stream.Record) (models.NormalizedQuote, error) {
	return func(rec stream.Record) (models.NormalizedQuote, error) {
		var zero models.NormalizedQuote

		env, err := models.DecodeEnvelope(rec.Data)
		if err != nil {
			return zero, err
		}
		if len(env.Prices) == 0 {
			return zero, fmt.Errorf("payload has no price entries")
		}

		entry := env.Prices[0]
		bid := float64(entry.Bid)
		ask := float64(entry.Ask)
		if bid <= 0 || ask <= 0 {
			return zero, fmt.Errorf("non-positive price for %s: bid=%v ask=%v", entry.Instrument, bid, ask)
		}
		if len(entry.Instrument) < 7 {
			return zero, fmt.Errorf("malformed instrument pair %q", entry.Instrument)
		}

		var symbol string
		if strings.HasPrefix(entry.Instrument, base) {
			// Quoted reference-first; invert so prices are in the reference
			// currency.
			bid = 1 / bid
			ask = 1 / ask
			symbol = entry.Instrument[4:7]
		} else {
			symbol = entry.Instrument[:3]
		}

		return models.NormalizedQuote{
			Symbol:    symbol,
			Timestamp: entry.Time.Time(),
			Bid:       bid,
			Ask:       ask,
		}, nil
	}
}
