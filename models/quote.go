package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// microsPerSecond is the scale of the provider's UNIX timestamps.
const microsPerSecond = 1_000_000

// Float decodes a JSON number that the provider sometimes quotes as a string.
type Float float64

func (f *Float) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*f = Float(v)
	return nil
}

// EpochMicros is a UNIX timestamp in microseconds, quoted or bare on the wire.
type EpochMicros int64

func (e *EpochMicros) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*e = 0
		return nil
	}
	// Some feeds format the epoch as "1577836800.000000".
	if i := strings.IndexByte(s, '.'); i >= 0 {
		sec, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		*e = EpochMicros(sec * microsPerSecond)
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	*e = EpochMicros(v)
	return nil
}

// Time converts the microsecond epoch to a whole-second UTC time.
func (e EpochMicros) Time() time.Time {
	return time.Unix(int64(e)/microsPerSecond, 0).UTC()
}

// PriceEntry is one instrument quote inside a provider payload.
type PriceEntry struct {
	Instrument string      `json:"instrument"`
	Time       EpochMicros `json:"time"`
	Bid        Float       `json:"bid"`
	Ask        Float       `json:"ask"`
}

// QuoteEnvelope is the provider response shape published onto the stream.
type QuoteEnvelope struct {
	Prices []PriceEntry `json:"prices"`
}

// DecodeEnvelope parses a raw stream payload into a QuoteEnvelope.
func DecodeEnvelope(data []byte) (*QuoteEnvelope, error) {
	var env QuoteEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode quote envelope: %w", err)
	}
	return &env, nil
}

// NormalizedQuote is a quote rewritten relative to the base currency.
type NormalizedQuote struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
}

// CSVRow renders the quote as one comma-delimited storage row.
func (q NormalizedQuote) CSVRow() string {
	return fmt.Sprintf("%s,%s,%s,%s",
		q.Symbol,
		q.Timestamp.Format("2006-01-02 15:04"),
		strconv.FormatFloat(q.Bid, 'f', -1, 64),
		strconv.FormatFloat(q.Ask, 'f', -1, 64),
	)
}

// PartitionKey identifies the storage object a quote lands in.
type PartitionKey struct {
	Symbol string
	Year   int
	Month  time.Month
	Day    int
}

// Partition computes the storage partition for the quote.
func (q NormalizedQuote) Partition() PartitionKey {
	t := q.Timestamp.UTC()
	return PartitionKey{
		Symbol: q.Symbol,
		Year:   t.Year(),
		Month:  t.Month(),
		Day:    t.Day(),
	}
}

// Path renders the partition as an object key, e.g. "EUR/2020/01/01".
func (k PartitionKey) Path() string {
	return fmt.Sprintf("%s/%04d/%02d/%02d", k.Symbol, k.Year, int(k.Month), k.Day)
}
