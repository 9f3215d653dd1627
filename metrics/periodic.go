// Copyright 2020 RetailNext, Inc.
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

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type periodic struct {
	LastRunOkGauges      *prometheus.GaugeVec
	LastRunAtGauges      *prometheus.GaugeVec
	RunInProgressGauges  *prometheus.GaugeVec
	RunErrorCounters     *prometheus.CounterVec
	RunCompletedCounters *prometheus.CounterVec
	RunSkippedCounters   *prometheus.CounterVec
	registerOnce         sync.Once
}

var (
	Periodic = periodic{
		LastRunAtGauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "periodic",
			Name:      "last_at_seconds",
			Help:      "Time the last run successfully completed.",
		}, []string{"type"}),
		LastRunOkGauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "periodic",
			Name:      "last_ok",
			Help:      "1 if the last run completed successfully.",
		}, []string{"type"}),
		RunInProgressGauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "periodic",
			Name:      "in_progress",
			Help:      "1 if a run is in progress.",
		}, []string{"type"}),
		RunErrorCounters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "periodic",
			Name:      "errors_total",
			Help:      "Number of failed runs.",
		}, []string{"type"}),
		RunCompletedCounters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "periodic",
			Name:      "completed_total",
			Help:      "Number of completed runs.",
		}, []string{"type"}),
		RunSkippedCounters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "periodic",
			Name:      "skipped_total",
			Help:      "Number of runs skipped because another run held the lock.",
		}, []string{"type"}),
	}
)

var runTypes = []string{"sync", "compact"}

func (c *periodic) RegisterMetrics() {
	c.registerOnce.Do(func() {
		prometheus.MustRegister(c.RunCompletedCounters)
		prometheus.MustRegister(c.RunErrorCounters)
		prometheus.MustRegister(c.RunSkippedCounters)
		prometheus.MustRegister(c.RunInProgressGauges)
		prometheus.MustRegister(c.LastRunAtGauges)
		prometheus.MustRegister(c.LastRunOkGauges)

		// reify everything
		for _, t := range runTypes {
			c.RunErrorCounters.WithLabelValues(t)
			c.RunCompletedCounters.WithLabelValues(t)
			c.RunSkippedCounters.WithLabelValues(t)
			c.RunInProgressGauges.WithLabelValues(t).Set(0)
			c.LastRunAtGauges.WithLabelValues(t).Set(0)
			c.LastRunOkGauges.WithLabelValues(t).Set(0)
		}
	})
}
