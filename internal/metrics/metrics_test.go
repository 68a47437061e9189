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

package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metricVecs: make(map[string]*MetricVec),
	}
}

func TestCounterWithoutLabels(t *testing.T) {
	r := newTestRegistry()
	labels := []string{}
	testCounter := r.NewCounterVec("test_counter", "Total number of something processed", labels)
	testCounter.WithLabelValues().Inc()
	require.Equal(t, int64(1), r.metricVecs["test_counter"].metrics[formatLabelKey(labels, []string{})].value.(int64))
	testCounter.WithLabelValues().Inc()
	require.Equal(t, int64(2), r.metricVecs["test_counter"].metrics[formatLabelKey(labels, []string{})].value.(int64))
}

func TestCounterWithLabels(t *testing.T) {
	r := newTestRegistry()
	labels := []string{"operation", "status"}
	testCounter := r.NewCounterVec("test_counter", "Total number of something processed", labels)
	testCounter.WithLabelValues("read", "success").Inc()
	require.Equal(t, int64(1), r.metricVecs["test_counter"].metrics[formatLabelKey(labels, []string{"read", "success"})].value.(int64))
	testCounter.WithLabelValues("write", "fail").Add(2)
	require.Equal(t, int64(2), r.metricVecs["test_counter"].metrics[formatLabelKey(labels, []string{"write", "fail"})].value.(int64))
}

func TestGauge(t *testing.T) {
	r := newTestRegistry()
	labels := []string{"sensor"}
	testGauge := r.NewGaugeVec("test_gauge", "Current value of something", labels)
	testGauge.WithLabelValues("temperature").Set(10.0)
	require.Equal(t, float64(10.0), r.metricVecs["test_gauge"].metrics[formatLabelKey(labels, []string{"temperature"})].value.(float64))
	testGauge.WithLabelValues("temperature").Set(20.0)
	require.Equal(t, float64(20.0), r.metricVecs["test_gauge"].metrics[formatLabelKey(labels, []string{"temperature"})].value.(float64))
}

func TestGatherMetrics(t *testing.T) {
	r := newTestRegistry()
	testCounter := r.NewCounterVec("test_counter", "Total number of something processed", []string{"operation", "status"})
	testCounter.WithLabelValues("read", "success").Inc()
	testGauge := r.NewGaugeVec("test_gauge", "Current value of something", []string{"sensor"})
	testGauge.WithLabelValues("temperature").Set(10.0)
	metricsOutput := r.GatherMetrics()
	expectedOutput := "# HELP test_counter Total number of something processed\n# TYPE test_counter counter\ntest_counter{operation=read,status=success} 1\n"
	expectedOutput += "# HELP test_gauge Current value of something\n# TYPE test_gauge gauge\ntest_gauge{sensor=temperature} 10.000000\n"
	require.Equal(t, expectedOutput, metricsOutput)
}

func TestGatherMetricsWithoutLabels(t *testing.T) {
	r := newTestRegistry()
	testCounter := r.NewCounterVec("test_counter", "Total number of something processed", []string{})
	testCounter.WithLabelValues().Inc()
	metricsOutput := r.GatherMetrics()
	expectedOutput := "# HELP test_counter Total number of something processed\n# TYPE test_counter counter\ntest_counter 1\n"
	require.Equal(t, expectedOutput, metricsOutput)
}

func TestRaceConditions(t *testing.T) {
	r := newTestRegistry()
	counter := r.NewCounterVec("test_counter", "Total number of something processed", []string{})
	var wg sync.WaitGroup
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			counter.WithLabelValues().Inc()
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1000), r.metricVecs["test_counter"].metrics[formatLabelKey([]string{}, []string{})].value.(int64))
}

func TestJobControlMetricsRegistered(t *testing.T) {
	require.NotNil(t, JobsLaunched)
	require.NotNil(t, JobsReaped)
	require.NotNil(t, SignalsDelivered)
	require.NotNil(t, JobTableSize)

	JobsLaunched.WithLabelValues("foreground").Inc()
	require.Contains(t, GetRegistry().GatherMetrics(), "gosh_jobs_launched_total")
}
