package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func captureLogger() (*Log, *bytes.Buffer) {
	log := Logger()
	buf := &bytes.Buffer{}
	log.SetOutput(buf)
	log.SetLevel(logrus.DebugLevel)
	return log, buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]interface{}
	if err := json.Unmarshal(lines[len(lines)-1], &entry); err != nil {
		t.Fatalf("failed to parse log line %q: %v", lines[len(lines)-1], err)
	}
	return entry
}

func TestLogDataFlowEntryFields(t *testing.T) {
	log, buf := captureLogger()

	LogDataFlowEntry(log.WithComponent("producer"), "quote_source", "stream", 11, "quote_payload")

	entry := lastEntry(t, buf)
	if entry["source"] != "quote_source" || entry["destination"] != "stream" {
		t.Fatalf("unexpected source/destination: %v / %v", entry["source"], entry["destination"])
	}
	if entry["record_count"] != float64(11) {
		t.Fatalf("expected record_count 11, got %v", entry["record_count"])
	}
	if entry["flow_type"] != "data_flow" {
		t.Fatalf("expected flow_type data_flow, got %v", entry["flow_type"])
	}
}

func TestLogPerformanceEntryFields(t *testing.T) {
	log, buf := captureLogger()

	LogPerformanceEntry(log.WithComponent("producer"), "producer", "run_cycle", 250*time.Millisecond, nil)

	entry := lastEntry(t, buf)
	if entry["operation"] != "run_cycle" {
		t.Fatalf("expected operation run_cycle, got %v", entry["operation"])
	}
	if entry["duration_ms"] != float64(250) {
		t.Fatalf("expected duration_ms 250, got %v", entry["duration_ms"])
	}
	if entry["component"] != "producer" {
		t.Fatalf("expected component producer, got %v", entry["component"])
	}
}
