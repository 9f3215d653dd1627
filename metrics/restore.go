// Copyright 2019 RetailNext, Inc.
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

// Restore is only registered by the restore command.
type restore struct {
	Segments     *prometheus.CounterVec
	Bytes        *prometheus.CounterVec
	Seconds      prometheus.Counter
	registerOnce sync.Once
}

const (
	RestoreDownloaded = "downloaded"
	RestoreSkipped    = "skipped"
	RestoreFailed     = "failed"
)

var Restore = restore{
	Segments: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "restore",
		Name:      "segments_total",
		Help:      "Segments handled by restore, by outcome.",
	}, []string{"outcome"}),
	Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "restore",
		Name:      "bytes_total",
		Help:      "Segment bytes handled by restore, by outcome.",
	}, []string{"outcome"}),
	Seconds: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "restore",
		Name:      "download_seconds_total",
		Help:      "Time spent downloading segments.",
	}),
}

func (c *restore) RegisterMetrics() {
	c.registerOnce.Do(func() {
		prometheus.MustRegister(c.Segments)
		prometheus.MustRegister(c.Bytes)
		prometheus.MustRegister(c.Seconds)
		for _, outcome := range []string{RestoreDownloaded, RestoreSkipped, RestoreFailed} {
			c.Segments.WithLabelValues(outcome)
			c.Bytes.WithLabelValues(outcome)
		}
	})
}
