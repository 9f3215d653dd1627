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

package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/retailnext/binlogbackup/bucket"
	"github.com/retailnext/binlogbackup/config"
	"github.com/retailnext/binlogbackup/metrics"
	"github.com/retailnext/writefile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Host      string
	Target    string
	Selection Selection
	DryRun    bool
	Parallel  int
}

// SegmentErrors maps segment names to the error that stopped their download.
type SegmentErrors map[string]error

func (e SegmentErrors) Error() string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%d segments failed: %s", len(e), strings.Join(names, ", "))
}

func (e SegmentErrors) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for name, err := range e {
		enc.AddString(name, err.Error())
	}
	return nil
}

// RestoreSegments downloads the selected segments of opts.Host into
// opts.Target. Segments already present with the stored size are skipped.
func RestoreSegments(ctx context.Context, cfg config.Config, opts Options) error {
	client, err := bucket.Open(ctx, cfg.Bucket)
	if err != nil {
		return err
	}
	return restoreWith(ctx, client, opts)
}

func restoreWith(ctx context.Context, client bucket.Client, opts Options) error {
	lgr := zap.S()
	metrics.Restore.RegisterMetrics()

	keyStore := client.KeyStore()
	objects, err := client.ListObjects(ctx, keyStore.AbsoluteKeyPrefixForHost(opts.Host))
	if err != nil {
		return err
	}
	items := Plan(objects, keyStore, opts.Host, opts.Selection)
	if len(items) == 0 {
		lgr.Warnw("nothing_to_restore", "host", opts.Host)
		return nil
	}
	lgr.Infow("restore_plan", "host", opts.Host, "segments", len(items), "first", items[0].Name, "last", items[len(items)-1].Name)
	if opts.DryRun {
		for _, item := range items {
			lgr.Infow("would_restore", "segment", item.Name, "key", item.Key, "size", item.Size)
		}
		return nil
	}

	w := newWorker(client, opts.Target, opts.Parallel)
	err = w.restoreSegments(ctx, items)
	var segmentErrors SegmentErrors
	if errors.As(err, &segmentErrors) {
		lgr.Errorw("restore_incomplete", "errors", segmentErrors)
	}
	return err
}

type worker struct {
	ctx    context.Context
	client bucket.Client
	target writefile.Config

	limiter       chan struct{}
	wg            sync.WaitGroup
	segmentErrors SegmentErrors
	lock          sync.Mutex
}

func newWorker(client bucket.Client, directory string, parallel int) *worker {
	if parallel < 1 {
		parallel = 1
	}
	return &worker{
		client: client,
		target: writefile.Config{
			Directory:     directory,
			DirectoryMode: 0755,
			FileMode:      0640,
		},
		limiter: make(chan struct{}, parallel),
	}
}

func (w *worker) restoreSegments(ctx context.Context, items []Item) error {
	w.ctx = ctx
	doneCh := ctx.Done()
DONE:
	for _, item := range items {
		select {
		case <-doneCh:
			break DONE
		case w.limiter <- struct{}{}:
			w.wg.Add(1)
			go w.restoreSegment(item)
		}
	}
	w.wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.segmentErrors != nil {
		return w.segmentErrors
	}
	return nil
}

func (w *worker) restoreSegment(item Item) {
	lgr := zap.S()
	var err error
	defer func() {
		if err != nil {
			metrics.Restore.Segments.WithLabelValues(metrics.RestoreFailed).Inc()
			lgr.Errorw("restore_segment_error", "segment", item.Name, "err", err)
			w.lock.Lock()
			if w.segmentErrors == nil {
				w.segmentErrors = make(SegmentErrors)
			}
			w.segmentErrors[item.Name] = err
			w.lock.Unlock()
		}
		<-w.limiter
		w.wg.Done()
	}()

	if info, statErr := os.Stat(filepath.Join(w.target.Directory, item.Name)); statErr == nil && info.Mode().IsRegular() && info.Size() == item.Size {
		metrics.Restore.Segments.WithLabelValues(metrics.RestoreSkipped).Inc()
		metrics.Restore.Bytes.WithLabelValues(metrics.RestoreSkipped).Add(float64(item.Size))
		lgr.Infow("restore_segment_skipped", "segment", item.Name)
		return
	}

	err = w.target.WriteFile(item.Name, func(file *os.File) error {
		start := time.Now()
		n, downloadErr := w.client.GetSegment(w.ctx, item.Key, file)
		if downloadErr != nil {
			return downloadErr
		}
		if n != item.Size {
			return fmt.Errorf("downloaded %d bytes, listed size %d", n, item.Size)
		}
		metrics.Restore.Seconds.Add(time.Since(start).Seconds())
		return nil
	})
	if err == nil {
		metrics.Restore.Segments.WithLabelValues(metrics.RestoreDownloaded).Inc()
		metrics.Restore.Bytes.WithLabelValues(metrics.RestoreDownloaded).Add(float64(item.Size))
		lgr.Infow("restored_segment", "segment", item.Name, "size", item.Size)
	}
}
