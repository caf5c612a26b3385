/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package spy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts captured statements per category. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	statements *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sql_statements_total",
			Help:      "Number of SQL statements captured, by category",
		}, []string{"category"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sql_statement_errors_total",
			Help:      "Number of captured SQL statements that returned an error",
		}, []string{"category"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sql_statement_duration_seconds",
			Help:      "Execution time of captured SQL statements",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"category"}),
	}
}

// Register adds all collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.statements, m.failures, m.duration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observe(category Category, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	label := category.Name()
	if label == "" {
		label = "unknown"
	}
	m.statements.WithLabelValues(label).Inc()
	m.duration.WithLabelValues(label).Observe(elapsed.Seconds())
	if err != nil {
		m.failures.WithLabelValues(label).Inc()
	}
}

// Statements returns the per-category statement counter.
func (m *Metrics) Statements() *prometheus.CounterVec { return m.statements }

// Failures returns the per-category error counter.
func (m *Metrics) Failures() *prometheus.CounterVec { return m.failures }
