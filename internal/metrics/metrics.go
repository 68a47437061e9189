// Copyright (c) 2024 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package metrics is a small Prometheus-text-format counter/gauge registry
// for the job-control machinery: jobs launched, jobs reaped, and signals
// delivered to foreground/background process groups. The counters are
// updated whether or not anything reads them; internal/statusapi exposes
// GatherMetrics over HTTP when the shell is started with a status listen
// address.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MetricType models the type of a metric.
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// MetricVec represents a collection of metrics with the same name and help but different label values.
type MetricVec struct {
	Name    string
	Help    string
	Type    MetricType
	metrics map[string]*Metric // Key is the label values string (e.g., "region=foo,service=bar")
	labels  []string           // Label names (e.g., ["region", "service"])
	mu      sync.RWMutex
}

// Metric represents a single metric within a MetricVec.
type Metric struct {
	LabelValues map[string]string // Label values for this metric
	value       interface{}       // int64 for counter, float64 for gauge.
	mu          sync.RWMutex      // Mutex for individual metric
}

// MetricsRegistry stores and manages metric vectors.
type MetricsRegistry struct {
	metricVecs map[string]*MetricVec
	mu         sync.RWMutex
}

var (
	registry *MetricsRegistry
	once     sync.Once
)

// GetRegistry returns the singleton MetricsRegistry instance.
func GetRegistry() *MetricsRegistry {
	once.Do(func() {
		registry = &MetricsRegistry{
			metricVecs: make(map[string]*MetricVec),
		}
	})
	return registry
}

func formatLabelKey(labels []string, labelValues []string) string {
	labelPairs := make([]string, len(labels))
	for i := range labels {
		labelPairs[i] = labels[i] + "=" + labelValues[i]
	}

	// Sort labels for consistency
	sort.Strings(labelPairs)
	return strings.Join(labelPairs, ",")
}

// NewCounterVec creates a new counter vector.
func (r *MetricsRegistry) NewCounterVec(name, help string, labels []string) *MetricVec {
	return r.newMetricVec(name, help, labels, MetricTypeCounter)
}

// NewGaugeVec creates a new gauge vector.
func (r *MetricsRegistry) NewGaugeVec(name, help string, labels []string) *MetricVec {
	return r.newMetricVec(name, help, labels, MetricTypeGauge)
}

// newMetricVec is a helper function to create a new metric vector of any type.
func (r *MetricsRegistry) newMetricVec(name, help string, labels []string, metricType MetricType) *MetricVec {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.metricVecs[name]; ok {
		panic(fmt.Sprintf("metric with name %s already registered", name))
	}
	vec := &MetricVec{
		Name:    name,
		Help:    help,
		Type:    metricType,
		metrics: make(map[string]*Metric),
		labels:  labels,
	}
	r.metricVecs[name] = vec
	return vec
}

// WithLabelValues gets or creates a metric with the specified label values.
func (v *MetricVec) WithLabelValues(labelValues ...string) *Metric {
	if len(labelValues) != len(v.labels) {
		panic(fmt.Errorf(
			"%q has %d variable labels named %q but %d values %q were provided",
			v.Name,
			len(v.labels),
			v.labels,
			len(labelValues),
			labelValues,
		))
	}

	labelKey := formatLabelKey(v.labels, labelValues)

	v.mu.RLock()
	metric, ok := v.metrics[labelKey]
	v.mu.RUnlock()

	if !ok {
		v.mu.Lock()
		defer v.mu.Unlock()
		// Double check locking
		metric, ok = v.metrics[labelKey]

		if !ok {
			metric = &Metric{
				LabelValues: make(map[string]string),
				value:       int64(0),
			}
			for i, label := range v.labels {
				metric.LabelValues[label] = labelValues[i]
			}
			v.metrics[labelKey] = metric
		}
	}

	return metric
}

// Inc increments the counter.
func (m *Metric) Inc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = m.value.(int64) + 1
}

// Add adds the given value to the counter.
func (m *Metric) Add(value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch v := m.value.(type) {
	case int64:
		m.value = v + value
	default:
		panic(fmt.Errorf("add called on a non-counter metric: %T", m.value))
	}
}

// Set sets the gauge value.
func (m *Metric) Set(value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = value
}

// GatherMetrics renders every registered metric vector in Prometheus text
// exposition format, vectors ordered by name. A metric without labels is
// written as a bare name, with no braces.
func (r *MetricsRegistry) GatherMetrics() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var output string

	names := make([]string, 0, len(r.metricVecs))
	for name := range r.metricVecs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		vec := r.metricVecs[name]
		output += fmt.Sprintf("# HELP %s %s\n", vec.Name, vec.Help)
		output += fmt.Sprintf("# TYPE %s %s\n", vec.Name, vec.Type)

		for labelKey, metric := range vec.metrics {
			series := vec.Name
			if labelKey != "" {
				series += "{" + labelKey + "}"
			}
			switch v := metric.value.(type) {
			case int64:
				output += fmt.Sprintf("%s %d\n", series, v)
			case float64:
				output += fmt.Sprintf("%s %f\n", series, v)
			default:
				output += fmt.Sprintf("%s %v\n", series, v)
			}
		}
	}

	return output
}

// Job-control counters and gauges, registered once at package init.
// JobsLaunched and JobsReaped are updated by internal/job and
// internal/reaper, SignalsDelivered by internal/signaling, and JobTableSize
// by internal/statusapi each time it serves /metrics.
var (
	JobsLaunched = GetRegistry().NewCounterVec(
		"gosh_jobs_launched_total", "Total number of jobs registered in the job table.", []string{"mode"})
	JobsReaped = GetRegistry().NewCounterVec(
		"gosh_jobs_reaped_total", "Total number of jobs removed from the job table after completion.", []string{"reason"})
	SignalsDelivered = GetRegistry().NewCounterVec(
		"gosh_signals_delivered_total", "Total number of signals sent to a job's process group.", []string{"signal"})
	JobTableSize = GetRegistry().NewGaugeVec(
		"gosh_job_table_size", "Current number of occupied job table slots.", []string{})
)
