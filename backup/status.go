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

	"github.com/retailnext/binlogbackup/bucket"
	"github.com/retailnext/binlogbackup/config"
	"go.uber.org/zap"
)

// Status logs the most recent runs and the state store size.
func (j *Job) Status(runs int) error {
	lgr := zap.S()
	records, err := j.history.Last(runs)
	if err != nil {
		return err
	}
	for _, r := range records {
		lgr.Infow("got_run",
			"time", r.Time,
			"uploaded", r.Uploaded,
			"uploaded_bytes", r.UploadedBytes,
			"failed", r.Failed,
			"failed_names", r.FailedNames,
			"rotated", r.Rotated,
			"pending", r.Pending,
			"notification", r.Notification,
		)
	}
	lgr.Infow("got_state_store", "path", j.store.Path(), "entries", j.store.Len())
	return nil
}

func DoStatus(cfg config.Config, runs int) error {
	return withJob(cfg, func(j *Job) error {
		return j.Status(runs)
	})
}

// DoListSegments logs the segments stored in the bucket for host.
func DoListSegments(ctx context.Context, cfg config.Config, host string) error {
	lgr := zap.S()
	client, err := bucket.Open(ctx, cfg.Bucket)
	if err != nil {
		return err
	}
	keyStore := client.KeyStore()
	objects, err := client.ListObjects(ctx, keyStore.AbsoluteKeyPrefixForHost(host))
	if err != nil {
		return err
	}
	for _, obj := range objects {
		name, err := keyStore.SegmentNameFromKey(host, obj.Key)
		if err != nil {
			lgr.Warnw("unexpected_key", "key", obj.Key, "err", err)
			continue
		}
		lgr.Infow("got_segment", "segment", name, "key", obj.Key, "size", obj.Size, "last_modified", obj.LastModified)
	}
	return nil
}
