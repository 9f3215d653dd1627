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

package backup

import (
	"context"
	"errors"
	"time"

	"github.com/retailnext/binlogbackup/bucket"
	"github.com/retailnext/binlogbackup/cache"
	"github.com/retailnext/binlogbackup/config"
	"github.com/retailnext/binlogbackup/flock"
	"github.com/retailnext/binlogbackup/history"
	"github.com/retailnext/binlogbackup/mariadb"
	"github.com/retailnext/binlogbackup/notify"
	"github.com/retailnext/binlogbackup/statestore"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type bucketOpener func(ctx context.Context, cfg config.BucketConfig) (bucket.Client, error)

// Job holds the lock and local state for one invocation.
type Job struct {
	cfg config.Config

	lock     *flock.Lock
	store    *statestore.Store
	storage  *cache.Storage
	history  *history.History
	reporter *Reporter

	db         mariadb.Controller
	openBucket bucketOpener
	now        func() time.Time
}

// Open takes the run lock and loads local state. It returns flock.ErrLocked
// when another invocation is running.
func Open(cfg config.Config) (*Job, error) {
	db := &mariadb.Client{
		Tool:         cfg.MariaDB.Client,
		DefaultsFile: cfg.MariaDB.DefaultsFile,
	}
	return open(cfg, db, notify.NewSink(cfg.Mail), bucket.Open)
}

func open(cfg config.Config, db mariadb.Controller, sink notify.Sink, openBucket bucketOpener) (*Job, error) {
	lock, err := flock.TryLock(cfg.LockFile)
	if err != nil {
		return nil, err
	}
	j := &Job{
		cfg:        cfg,
		lock:       lock,
		db:         db,
		openBucket: openBucket,
		now:        time.Now,
	}
	if j.store, err = statestore.Open(cfg.StateFile, cfg.StateMaxBytes); err != nil {
		return nil, multierr.Append(err, j.Close())
	}
	if j.storage, err = cache.Open(cfg.HistoryFile, 0o644); err != nil {
		return nil, multierr.Append(err, j.Close())
	}
	j.history = history.New(j.storage)
	j.reporter = NewReporter(cfg, sink, j.history)
	return j, nil
}

// Close releases local state and then the lock.
func (j *Job) Close() error {
	var err error
	if j.storage != nil {
		err = multierr.Append(err, j.storage.Close())
	}
	err = multierr.Append(err, j.store.Close())
	err = multierr.Append(err, j.lock.Unlock())
	return err
}

func (j *Job) syncer(client bucket.Client) *Syncer {
	s := NewSyncer(j.cfg, j.db, j.store, client, j.history)
	s.now = j.now
	return s
}

// Sync validates the bucket, uploads new segments and reports. Precondition
// failures are alerted and returned.
func (j *Job) Sync(ctx context.Context) (Result, error) {
	lgr := zap.S()
	start := j.now()

	client, err := j.openBucket(ctx, j.cfg.Bucket)
	if err == nil {
		err = client.Validate(ctx)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		err = &PreconditionError{Op: "open bucket " + j.cfg.Bucket.Name, Err: err}
		j.reporter.ReportPrecondition(ctx, start, err)
		return Result{}, err
	}

	result, err := j.syncer(client).SyncOnce(ctx)
	if err != nil {
		if IsPrecondition(err) {
			j.reporter.ReportPrecondition(ctx, start, err)
		}
		return result, err
	}
	lgr.Infow("sync_complete",
		"active", result.Active,
		"uploaded", result.Uploaded,
		"uploaded_bytes", result.UploadedBytes,
		"failed", result.Failed,
		"escalated", len(result.Escalated),
		"pending", result.Pending,
		"rotated", result.Rotated,
		"state_entries", j.store.Len(),
		"duration", j.now().Sub(start).String(),
	)

	if _, err := j.reporter.Report(ctx, j.now(), result, j.store.Len()); err != nil {
		lgr.Errorw("history_error", "err", err)
	}
	return result, nil
}

// Compact drops state store entries for segments no longer on disk.
func (j *Job) Compact(ctx context.Context) (kept, dropped int, err error) {
	return j.syncer(nil).Compact(ctx)
}

// DoSync runs one sync under the lock. It returns flock.ErrLocked, after
// logging lock_held, when another invocation holds the lock.
func DoSync(ctx context.Context, cfg config.Config) error {
	return withJob(cfg, func(j *Job) error {
		_, err := j.Sync(ctx)
		return err
	})
}

// DoCompact runs one compaction under the lock.
func DoCompact(ctx context.Context, cfg config.Config) error {
	return withJob(cfg, func(j *Job) error {
		_, _, err := j.Compact(ctx)
		return err
	})
}

func withJob(cfg config.Config, f func(j *Job) error) error {
	lgr := zap.S()
	j, err := Open(cfg)
	if errors.Is(err, flock.ErrLocked) {
		lgr.Infow("lock_held", "path", cfg.LockFile)
		return err
	}
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := j.Close(); closeErr != nil {
			lgr.Errorw("job_close_error", "err", closeErr)
		}
	}()
	return f(j)
}
