// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const databaseMetricNamePrefix = "votechain_database_"

type databaseMetrics struct {
	ops      *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newDatabaseMetrics(
	promRegistry prometheus.Registerer,
	pluginName string,
) *databaseMetrics {
	promautoFactory := promauto.With(promRegistry)
	labels := prometheus.Labels{"plugin": pluginName}
	return &databaseMetrics{
		ops: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        databaseMetricNamePrefix + "ops_total",
				Help:        "Total number of gateway operations",
				ConstLabels: labels,
			},
			[]string{"op"},
		),
		errors: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        databaseMetricNamePrefix + "errors_total",
				Help:        "Total number of failed gateway operations",
				ConstLabels: labels,
			},
			[]string{"op"},
		),
		duration: promautoFactory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        databaseMetricNamePrefix + "op_duration_seconds",
				Help:        "Gateway operation latency",
				ConstLabels: labels,
				Buckets:     prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"op"},
		),
	}
}

func (m *databaseMetrics) observe(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.errors.WithLabelValues(op).Inc()
	}
}
