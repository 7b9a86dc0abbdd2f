// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package observability

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var invalidMetricChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// PrometheusTracer exports span durations as a histogram and every
// RecordMetric name as a counter. Counters are created lazily; the label set
// seen on the first call for a name fixes that counter's label keys.
type PrometheusTracer struct {
	namespace string
	reg       prometheus.Registerer
	logger    *zap.Logger

	spanDuration *prometheus.HistogramVec
	events       *prometheus.CounterVec

	mu       sync.Mutex
	counters map[string]*counterEntry
}

type counterEntry struct {
	vec  *prometheus.CounterVec
	keys []string
}

// NewPrometheusTracer registers the tracer's base collectors on reg.
func NewPrometheusTracer(namespace string, reg prometheus.Registerer, logger *zap.Logger) (*PrometheusTracer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	spanDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "span_duration_seconds",
		Help:      "Duration of instrumented operations.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"span", "status"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Standalone events recorded outside spans.",
	}, []string{"event"})

	var err error
	if spanDuration, err = registerOrExisting(reg, spanDuration); err != nil {
		return nil, err
	}
	if events, err = registerOrExisting(reg, events); err != nil {
		return nil, err
	}

	return &PrometheusTracer{
		namespace:    namespace,
		reg:          reg,
		logger:       logger,
		spanDuration: spanDuration,
		events:       events,
		counters:     make(map[string]*counterEntry),
	}, nil
}

func registerOrExisting[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (t *PrometheusTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	span := newSpan(ctx, uuid.NewString(), uuid.NewString(), name, opts)
	span.StartTime = time.Now()
	return ContextWithSpan(ctx, span), span
}

func (t *PrometheusTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	t.spanDuration.WithLabelValues(span.Name, span.Status.Code.String()).Observe(span.Duration.Seconds())
	if span.Status.Code == StatusError {
		t.logger.Debug("span failed",
			zap.String("span", span.Name),
			zap.String("error", span.Status.Message),
			zap.Duration("duration", span.Duration))
	}
}

// RecordMetric adds value to a counter named <namespace>_<name>_total.
// Negative values cannot be represented by a counter and are dropped.
func (t *PrometheusTracer) RecordMetric(name string, value float64, labels map[string]string) {
	if value < 0 {
		t.logger.Debug("dropping negative counter increment", zap.String("metric", name), zap.Float64("value", value))
		return
	}
	entry, err := t.counter(name, labels)
	if err != nil {
		t.logger.Warn("failed to register metric", zap.String("metric", name), zap.Error(err))
		return
	}
	values := make([]string, len(entry.keys))
	for i, k := range entry.keys {
		values[i] = labels[k]
	}
	entry.vec.WithLabelValues(values...).Add(value)
}

func (t *PrometheusTracer) counter(name string, labels map[string]string) (*counterEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.counters[name]; ok {
		return entry, nil
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, invalidMetricChars.ReplaceAllString(k, "_"))
	}
	sort.Strings(keys)

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: t.namespace,
		Name:      invalidMetricChars.ReplaceAllString(name, "_") + "_total",
		Help:      "Counter recorded via RecordMetric: " + name,
	}, keys)
	vec, err := registerOrExisting(t.reg, vec)
	if err != nil {
		return nil, err
	}

	// label lookups use the caller's original keys
	orig := make([]string, 0, len(labels))
	for k := range labels {
		orig = append(orig, k)
	}
	sort.Slice(orig, func(i, j int) bool {
		return invalidMetricChars.ReplaceAllString(orig[i], "_") < invalidMetricChars.ReplaceAllString(orig[j], "_")
	})

	entry := &counterEntry{vec: vec, keys: orig}
	t.counters[name] = entry
	return entry, nil
}

func (t *PrometheusTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	t.events.WithLabelValues(name).Inc()
}

// Flush is a no-op: Prometheus pulls.
func (t *PrometheusTracer) Flush(ctx context.Context) error {
	return nil
}

var _ Tracer = (*PrometheusTracer)(nil)
