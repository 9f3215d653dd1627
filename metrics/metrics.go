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
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "binlogbackup"

type cache struct {
	getHitsVec       *prometheus.CounterVec
	getMissesVec     *prometheus.CounterVec
	getPromotionsVec *prometheus.CounterVec
	putsVec          *prometheus.CounterVec
}

type bucket struct {
	UploadedBytes prometheus.Counter
	UploadedFiles prometheus.Counter
	UploadErrors  prometheus.Counter
}

type tracker struct {
	SegmentsUploaded  prometheus.Counter
	SegmentsFailed    prometheus.Counter
	VerifyMismatches  prometheus.Counter
	Rotations         prometheus.Counter
	RotationErrors    prometheus.Counter
	PendingSegments   prometheus.Gauge
	StateStoreEntries prometheus.Gauge
	CompactionDropped prometheus.Counter
}

type notify struct {
	sentVec   *prometheus.CounterVec
	ErrorsVec *prometheus.CounterVec
}

type CacheCounters struct {
	Hits       prometheus.Counter
	Misses     prometheus.Counter
	Promotions prometheus.Counter
	Puts       prometheus.Counter
}

func NewCacheCounters(name string) *CacheCounters {
	return &CacheCounters{
		Hits:       Cache.getHitsVec.WithLabelValues(name),
		Misses:     Cache.getMissesVec.WithLabelValues(name),
		Promotions: Cache.getPromotionsVec.WithLabelValues(name),
		Puts:       Cache.putsVec.WithLabelValues(name),
	}
}

func (n *notify) Sent(kind string) prometheus.Counter {
	return n.sentVec.WithLabelValues(kind)
}

var (
	Bucket = bucket{
		UploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bucket",
			Name:      "upload_bytes_total",
			Help:      "Total bytes uploaded to the bucket.",
		}),
		UploadedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bucket",
			Name:      "upload_files_total",
			Help:      "Number of files uploaded to the bucket.",
		}),
		UploadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bucket",
			Name:      "upload_errors_total",
			Help:      "Number of failed file uploads.",
		}),
	}

	Sync = tracker{
		SegmentsUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "segments_uploaded_total",
			Help:      "Number of segments uploaded, verified and recorded.",
		}),
		SegmentsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "segments_failed_total",
			Help:      "Number of segment upload attempts that were not recorded.",
		}),
		VerifyMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "verify_mismatches_total",
			Help:      "Number of uploads whose remote size did not match the local size.",
		}),
		Rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "rotations_total",
			Help:      "Number of forced binary log rotations.",
		}),
		RotationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "rotation_errors_total",
			Help:      "Number of failed forced binary log rotations.",
		}),
		PendingSegments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pending_segments",
			Help:      "Completed segments not yet recorded as uploaded after the last run.",
		}),
		StateStoreEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "state_store_entries",
			Help:      "Number of names in the state store.",
		}),
		CompactionDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "compaction_dropped_total",
			Help:      "Number of state store entries dropped by compaction.",
		}),
	}

	Cache = cache{
		getHitsVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "get_hits_total",
			Help:      "Number of cache gets that were hits.",
		}, []string{"cache"}),
		getMissesVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "get_misses_total",
			Help:      "Number of cache gets that were misses.",
		}, []string{"cache"}),
		getPromotionsVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "promotions_total",
			Help:      "Number of cache gets that in promoting a value from the previous bucket.",
		}, []string{"cache"}),
		putsVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "puts_total",
			Help:      "Number of cache put requests.",
		}, []string{"cache"}),
	}

	Notify = notify{
		sentVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Number of notifications delivered, by kind.",
		}, []string{"kind"}),
		ErrorsVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "errors_total",
			Help:      "Number of notifications that could not be delivered, by kind.",
		}, []string{"kind"}),
	}
)

func SetupPrometheus(metricsListenAddress, metricsPath *string) {
	if metricsListenAddress == nil || *metricsListenAddress == "" {
		return
	}
	go func() {
		http.Handle(*metricsPath, promhttp.Handler())
		err := http.ListenAndServe(*metricsListenAddress, nil)
		zap.S().Fatalw("metrics_listen_error", "err", err)
	}()
}

// WriteTextfile writes all registered metrics for the node_exporter textfile
// collector. One-shot invocations exit before anything could scrape them.
func WriteTextfile(path *string) {
	if path == nil || *path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(*path, prometheus.DefaultGatherer); err != nil {
		zap.S().Errorw("metrics_textfile_error", "path", *path, "err", err)
	}
}

func init() {
	prometheus.MustRegister(Cache.getHitsVec)
	prometheus.MustRegister(Cache.getMissesVec)
	prometheus.MustRegister(Cache.getPromotionsVec)
	prometheus.MustRegister(Cache.putsVec)

	prometheus.MustRegister(Bucket.UploadedBytes)
	prometheus.MustRegister(Bucket.UploadedFiles)
	prometheus.MustRegister(Bucket.UploadErrors)

	prometheus.MustRegister(Sync.SegmentsUploaded)
	prometheus.MustRegister(Sync.SegmentsFailed)
	prometheus.MustRegister(Sync.VerifyMismatches)
	prometheus.MustRegister(Sync.Rotations)
	prometheus.MustRegister(Sync.RotationErrors)
	prometheus.MustRegister(Sync.PendingSegments)
	prometheus.MustRegister(Sync.StateStoreEntries)
	prometheus.MustRegister(Sync.CompactionDropped)

	prometheus.MustRegister(Notify.sentVec)
	prometheus.MustRegister(Notify.ErrorsVec)
}
