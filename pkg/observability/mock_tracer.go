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
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricPoint is a captured RecordMetric call.
type MetricPoint struct {
	Name   string
	Value  float64
	Labels map[string]string
}

// MockTracer captures spans and metrics for inspection in tests.
type MockTracer struct {
	mu      sync.RWMutex
	spans   []*Span
	metrics []MetricPoint
	events  []string
	seq     atomic.Int64
}

// NewMockTracer creates a new mock tracer for testing.
func NewMockTracer() *MockTracer {
	return &MockTracer{}
}

func (m *MockTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	id := m.seq.Add(1)
	span := newSpan(ctx, fmt.Sprintf("trace-%d", id), fmt.Sprintf("span-%d", id), name, opts)
	span.StartTime = time.Now()
	return ContextWithSpan(ctx, span), span
}

func (m *MockTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = append(m.spans, span)
}

func (m *MockTracer) RecordMetric(name string, value float64, labels map[string]string) {
	cp := make(map[string]string, len(labels))
	for k, v := range labels {
		cp[k] = v
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, MetricPoint{Name: name, Value: value, Labels: cp})
}

func (m *MockTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, name)
}

func (m *MockTracer) Flush(ctx context.Context) error {
	return nil
}

// GetSpans returns a copy of all ended spans.
func (m *MockTracer) GetSpans() []*Span {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spans := make([]*Span, len(m.spans))
	copy(spans, m.spans)
	return spans
}

// GetSpansByName returns every ended span with the given name.
func (m *MockTracer) GetSpansByName(name string) []*Span {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Span
	for _, span := range m.spans {
		if span.Name == name {
			out = append(out, span)
		}
	}
	return out
}

// MetricTotal sums every recorded value of name.
func (m *MockTracer) MetricTotal(name string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0.0
	for _, p := range m.metrics {
		if p.Name == name {
			total += p.Value
		}
	}
	return total
}

// MetricNames returns the distinct metric names recorded so far, sorted.
func (m *MockTracer) MetricNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, p := range m.metrics {
		seen[p.Name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Events returns the names of recorded standalone events.
func (m *MockTracer) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.events...)
}

// Reset clears everything captured.
func (m *MockTracer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = nil
	m.metrics = nil
	m.events = nil
}

// String summarizes captured span names; handy in failure messages.
func (m *MockTracer) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.spans))
	for i, s := range m.spans {
		names[i] = s.Name
	}
	return strings.Join(names, ",")
}

var _ Tracer = (*MockTracer)(nil)
