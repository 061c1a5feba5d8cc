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

package objstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const objectMetricNamePrefix = "votechain_database_object_"

type objectMetrics struct {
	ops   *prometheus.CounterVec
	bytes *prometheus.CounterVec
}

func newObjectMetrics(
	promRegistry prometheus.Registerer,
	pluginName string,
) *objectMetrics {
	promautoFactory := promauto.With(promRegistry)
	labels := prometheus.Labels{"plugin": pluginName}
	return &objectMetrics{
		ops: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        objectMetricNamePrefix + "ops_total",
				Help:        "Total number of object store operations",
				ConstLabels: labels,
			},
			[]string{"op"},
		),
		bytes: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        objectMetricNamePrefix + "bytes_total",
				Help:        "Total compressed bytes read or written",
				ConstLabels: labels,
			},
			[]string{"op"},
		),
	}
}

// record is safe to call on a nil receiver
func (m *objectMetrics) record(op string, size int) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op).Inc()
	if size > 0 {
		m.bytes.WithLabelValues(op).Add(float64(size))
	}
}
