// Package metrics emits CloudWatch Embedded Metric Format (EMF) records.
// Each record is one JSON line; when the process runs under a CloudWatch
// agent or Lambda the metrics are extracted automatically, elsewhere the
// lines are plain structured output.
//
// See: https://docs.aws.amazon.com/AmazonCloudWatch/latest/monitoring/CloudWatch_Embedded_Metric_Format_Specification.html
package metrics

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Standard CloudWatch metric units.
const (
	UnitMilliseconds = "Milliseconds"
	UnitCount        = "Count"
	UnitBytes        = "Bytes"
	UnitNone         = "None"
)

// DefaultNamespace is used when no namespace is configured.
const DefaultNamespace = "BeautyRetouch"

type metricDef struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

type emfDirective struct {
	Timestamp         int64      `json:"Timestamp"`
	CloudWatchMetrics []cwMetric `json:"CloudWatchMetrics"`
}

type cwMetric struct {
	Namespace  string      `json:"Namespace"`
	Dimensions [][]string  `json:"Dimensions"`
	Metrics    []metricDef `json:"Metrics"`
}

// Sink writes flushed records to an output. A Sink is safe for concurrent
// use; the Recorders it hands out are not.
type Sink struct {
	namespace string
	mu        sync.Mutex
	out       io.Writer
	now       func() time.Time
}

// NewSink returns a Sink writing to out. A nil out means stdout.
func NewSink(namespace string, out io.Writer) *Sink {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if out == nil {
		out = os.Stdout
	}
	return &Sink{namespace: namespace, out: out, now: time.Now}
}

// Discard returns a Sink that drops everything.
func Discard() *Sink {
	return NewSink(DefaultNamespace, io.Discard)
}

// Recorder accumulates dimensions, metrics and properties for one record.
type Recorder struct {
	sink       *Sink
	dimensions map[string]string
	metrics    map[string]metricDef
	values     map[string]interface{}
	properties map[string]interface{}
}

// New starts a record. A nil Sink yields a Recorder whose Flush is a no-op.
func (s *Sink) New() *Recorder {
	return &Recorder{
		sink:       s,
		dimensions: make(map[string]string),
		metrics:    make(map[string]metricDef),
		values:     make(map[string]interface{}),
		properties: make(map[string]interface{}),
	}
}

// Dimension adds an indexed dimension.
func (r *Recorder) Dimension(key, value string) *Recorder {
	r.dimensions[key] = value
	return r
}

// Metric records a value with a CloudWatch unit.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	r.metrics[name] = metricDef{Name: name, Unit: unit}
	r.values[name] = value
	return r
}

// Count records a count of one.
func (r *Recorder) Count(name string) *Recorder {
	return r.Metric(name, 1, UnitCount)
}

// Duration records d in milliseconds.
func (r *Recorder) Duration(name string, d time.Duration) *Recorder {
	return r.Metric(name, float64(d)/float64(time.Millisecond), UnitMilliseconds)
}

// Property adds a searchable, non-metric field.
func (r *Recorder) Property(key string, value interface{}) *Recorder {
	r.properties[key] = value
	return r
}

// Flush writes the record as a single line. Records without metrics are
// dropped. The Recorder must not be reused afterwards.
func (r *Recorder) Flush() {
	if r.sink == nil || len(r.metrics) == 0 {
		return
	}

	names := make([]string, 0, len(r.metrics))
	for n := range r.metrics {
		names = append(names, n)
	}
	sort.Strings(names)
	defs := make([]metricDef, 0, len(names))
	for _, n := range names {
		defs = append(defs, r.metrics[n])
	}

	dimKeys := make([]string, 0, len(r.dimensions))
	for k := range r.dimensions {
		dimKeys = append(dimKeys, k)
	}
	sort.Strings(dimKeys)

	doc := make(map[string]interface{}, 1+len(r.dimensions)+len(r.values)+len(r.properties))
	for k, v := range r.properties {
		doc[k] = v
	}
	for k, v := range r.dimensions {
		doc[k] = v
	}
	for k, v := range r.values {
		doc[k] = v
	}
	doc["_aws"] = emfDirective{
		Timestamp: r.sink.now().UnixMilli(),
		CloudWatchMetrics: []cwMetric{{
			Namespace:  r.sink.namespace,
			Dimensions: [][]string{dimKeys},
			Metrics:    defs,
		}},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal EMF record")
		return
	}
	data = append(data, '\n')

	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	if _, err := r.sink.out.Write(data); err != nil {
		log.Warn().Err(err).Msg("Failed to write EMF record")
	}
}
