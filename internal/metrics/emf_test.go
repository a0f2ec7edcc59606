package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRecorderFlushOutput(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink("RetouchTest", &buf)
	sink.now = func() time.Time { return time.UnixMilli(1700000000000) }

	sink.New().
		Dimension("Tool", "skinSmoothing").
		Duration("ApplyLatency", 12500*time.Microsecond).
		Count("Applied").
		Property("operationId", "abc-123").
		Flush()

	output := buf.String()
	if strings.Count(output, "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", output)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, output)
	}

	awsMap, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	if awsMap["Timestamp"] != float64(1700000000000) {
		t.Errorf("expected fixed timestamp, got %v", awsMap["Timestamp"])
	}

	cwArr, ok := awsMap["CloudWatchMetrics"].([]interface{})
	if !ok || len(cwArr) != 1 {
		t.Fatal("CloudWatchMetrics should contain one entry")
	}
	cw := cwArr[0].(map[string]interface{})
	if cw["Namespace"] != "RetouchTest" {
		t.Errorf("expected namespace RetouchTest, got %v", cw["Namespace"])
	}

	metricsArr := cw["Metrics"].([]interface{})
	if len(metricsArr) != 2 {
		t.Fatalf("expected 2 metric definitions, got %d", len(metricsArr))
	}
	first := metricsArr[0].(map[string]interface{})
	if first["Name"] != "ApplyLatency" || first["Unit"] != UnitMilliseconds {
		t.Errorf("expected ApplyLatency in ms first, got %v", first)
	}

	if doc["ApplyLatency"] != 12.5 {
		t.Errorf("expected ApplyLatency=12.5, got %v", doc["ApplyLatency"])
	}
	if doc["Tool"] != "skinSmoothing" {
		t.Errorf("expected Tool dimension, got %v", doc["Tool"])
	}
	if doc["operationId"] != "abc-123" {
		t.Errorf("expected operationId property, got %v", doc["operationId"])
	}
}

func TestFlushWithoutMetricsWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	NewSink("", &buf).New().Dimension("Tool", "x").Property("k", "v").Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestNilSinkRecorderIsNoop(t *testing.T) {
	var s *Sink
	s.New().Count("Applied").Flush()
}

func TestDefaultNamespace(t *testing.T) {
	var buf bytes.Buffer
	NewSink("", &buf).New().Count("X").Flush()
	if !strings.Contains(buf.String(), DefaultNamespace) {
		t.Errorf("expected default namespace in %q", buf.String())
	}
}
