// Copyright 2026 RetailNext, Inc.
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

// Package backup copies completed binary log segments to the bucket exactly
// once, and reports on what it did.
package backup

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/retailnext/binlogbackup/bucket"
	"github.com/retailnext/binlogbackup/config"
	"github.com/retailnext/binlogbackup/digest"
	"github.com/retailnext/binlogbackup/history"
	"github.com/retailnext/binlogbackup/mariadb"
	"github.com/retailnext/binlogbackup/metrics"
	"github.com/retailnext/binlogbackup/segment"
	"github.com/retailnext/binlogbackup/statestore"
	"go.uber.org/zap"
)

type Result struct {
	Active        string
	Rotated       bool
	Uploaded      int
	UploadedBytes int64
	Failed        int
	UploadedNames []string
	FailedNames   []string
	// Escalated are failed names whose consecutive failures reached the
	// failure threshold.
	Escalated []string
	// Pending counts completed segments still not recorded after the run.
	Pending int
}

type Syncer struct {
	directory        string
	basename         string
	host             string
	partSize         int64
	rotateAfter      time.Duration
	rotateSettle     time.Duration
	failureThreshold int

	db      mariadb.Controller
	store   *statestore.Store
	client  bucket.Client
	history *history.History

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSyncer wires a Syncer. hist may be nil, in which case failures are not
// counted across runs.
func NewSyncer(cfg config.Config, db mariadb.Controller, store *statestore.Store, client bucket.Client, hist *history.History) *Syncer {
	return &Syncer{
		directory:        cfg.BinlogDirectory,
		basename:         cfg.BinlogBasename,
		host:             cfg.Hostname,
		partSize:         cfg.Bucket.PartSize,
		rotateAfter:      cfg.MariaDB.RotateAfter,
		rotateSettle:     cfg.MariaDB.RotateSettle,
		failureThreshold: cfg.Report.FailureThreshold,
		db:               db,
		store:            store,
		client:           client,
		history:          hist,
		now:              time.Now,
		sleep:            sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SyncOnce uploads every completed segment that is not yet in the state store.
// A name is appended to the store only after the bucket reports an object of
// the same size. Failed segments are left for the next invocation.
func (s *Syncer) SyncOnce(ctx context.Context) (Result, error) {
	lgr := zap.S()
	var result Result

	active, segments, err := s.scan(ctx)
	if err != nil {
		return result, err
	}
	if s.shouldRotate(segments, active) {
		if s.rotate(ctx) {
			result.Rotated = true
			if err := s.sleep(ctx, s.rotateSettle); err != nil {
				return result, err
			}
			active, segments, err = s.scan(ctx)
			if err != nil {
				return result, err
			}
		}
	}
	result.Active = active

	activeListed := false
	for _, seg := range segments {
		name := seg.Name()
		if name == active {
			activeListed = true
			continue
		}
		if s.store.Contains(name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		uploadErr := s.upload(ctx, seg)
		if uploadErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				lgr.Infow("upload_cancelled", "segment", name)
				return result, ctxErr
			}
			result.Failed++
			result.FailedNames = append(result.FailedNames, name)
			metrics.Sync.SegmentsFailed.Inc()
			if s.recordFailure(name) {
				result.Escalated = append(result.Escalated, name)
			}
			continue
		}
		result.Uploaded++
		result.UploadedBytes += seg.Len()
		result.UploadedNames = append(result.UploadedNames, name)
		metrics.Sync.SegmentsUploaded.Inc()
		s.clearFailure(name)
	}
	if !activeListed {
		lgr.Warnw("active_segment_not_listed", "active", active, "directory", s.directory, "basename", s.basename)
	}

	for _, seg := range segments {
		if seg.Name() != active && !s.store.Contains(seg.Name()) {
			result.Pending++
		}
	}
	metrics.Sync.PendingSegments.Set(float64(result.Pending))
	metrics.Sync.StateStoreEntries.Set(float64(s.store.Len()))
	return result, nil
}

func (s *Syncer) scan(ctx context.Context) (string, []segment.Segment, error) {
	active, err := s.db.CurrentSegment(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", nil, ctxErr
		}
		return "", nil, &PreconditionError{Op: "read active binary log", Err: err}
	}
	segments, err := segment.List(s.directory, s.basename)
	if err != nil {
		return "", nil, &PreconditionError{Op: "list " + s.directory, Err: err}
	}
	return active, segments, nil
}

// shouldRotate reports whether the active segment has been open longer than
// rotateAfter. The newest completed segment was closed when the active one
// was opened, so its mtime stands in for the active segment's age.
func (s *Syncer) shouldRotate(segments []segment.Segment, active string) bool {
	if s.rotateAfter <= 0 {
		return false
	}
	var newest *segment.Segment
	for i := range segments {
		if segments[i].Name() == active {
			continue
		}
		if newest == nil || segments[i].Name() > newest.Name() {
			newest = &segments[i]
		}
	}
	if newest == nil {
		return false
	}
	age := s.now().Sub(newest.ModTime())
	if age < s.rotateAfter {
		return false
	}
	zap.S().Infow("rotation_due", "active", active, "age", age.Round(time.Second).String())
	return true
}

func (s *Syncer) rotate(ctx context.Context) bool {
	if err := s.db.Rotate(ctx); err != nil {
		metrics.Sync.RotationErrors.Inc()
		zap.S().Errorw("rotate_error", "err", err)
		return false
	}
	metrics.Sync.Rotations.Inc()
	zap.S().Infow("rotated_binary_log")
	return true
}

func (s *Syncer) upload(ctx context.Context, seg segment.Segment) error {
	lgr := zap.S()
	name := seg.Name()
	key := s.client.KeyStore().AbsoluteKeyForSegment(s.host, name, seg.ModTime())

	digests, err := digest.Compute(ctx, seg, s.partSize)
	if err != nil {
		lgr.Errorw("upload_failed", "segment", name, "key", key, "stage", "digest", "err", err)
		return err
	}
	if err := s.client.PutSegment(ctx, key, seg, digests); err != nil {
		lgr.Errorw("upload_failed", "segment", name, "key", key, "stage", "put", "err", err)
		return err
	}
	remoteSize, err := s.client.ObjectSize(ctx, key)
	if err != nil {
		lgr.Errorw("upload_failed", "segment", name, "key", key, "stage", "verify", "err", err)
		return err
	}
	if remoteSize != seg.Len() {
		metrics.Sync.VerifyMismatches.Inc()
		lgr.Errorw("upload_size_mismatch", "segment", name, "key", key, "local", seg.Len(), "remote", remoteSize)
		return &SizeMismatch{Key: key, Local: seg.Len(), Remote: remoteSize}
	}
	if err := s.store.Append(name); err != nil {
		lgr.Errorw("upload_failed", "segment", name, "key", key, "stage", "record", "err", err)
		return err
	}
	lgr.Infow("segment_uploaded", "segment", name, "key", key, "size", seg.Len(), "blake2b", digests.Blake2b())
	return nil
}

// recordFailure bumps the consecutive failure count for name and reports
// whether it reached the threshold.
func (s *Syncer) recordFailure(name string) bool {
	if s.history == nil {
		return false
	}
	count, err := s.history.IncrementFailure(name)
	if err != nil {
		zap.S().Errorw("failure_count_error", "segment", name, "err", err)
		return false
	}
	return s.failureThreshold > 0 && count >= s.failureThreshold
}

func (s *Syncer) clearFailure(name string) {
	if s.history == nil {
		return
	}
	if err := s.history.ResetFailure(name); err != nil {
		zap.S().Errorw("failure_count_error", "segment", name, "err", err)
	}
}

// Compact drops state store names whose segment no longer exists locally.
// A missing or unreadable directory is a precondition failure, not an empty
// one.
func (s *Syncer) Compact(ctx context.Context) (kept, dropped int, err error) {
	if err := checkDirectory(s.directory); err != nil {
		return 0, 0, &PreconditionError{Op: "list " + s.directory, Err: err}
	}
	kept, dropped, err = s.store.Compact(func(name string) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return segment.Exists(s.directory, name)
	})
	if err != nil {
		return kept, dropped, err
	}
	metrics.Sync.CompactionDropped.Add(float64(dropped))
	metrics.Sync.StateStoreEntries.Set(float64(kept))
	zap.S().Infow("compact_complete", "kept", kept, "dropped", dropped)
	return kept, dropped, nil
}

func checkDirectory(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", dir)
	}
	return nil
}
