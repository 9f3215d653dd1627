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
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/retailnext/binlogbackup/bucket"
	bucketconfig "github.com/retailnext/binlogbackup/bucket/config"
	"github.com/retailnext/binlogbackup/bucket/keystore"
	"github.com/retailnext/binlogbackup/config"
	"github.com/retailnext/binlogbackup/digest"
	"github.com/retailnext/binlogbackup/segment"
)

type fakeDB struct {
	active     string
	currentErr error
	rotateErr  error
	rotations  int
	onRotate   func(db *fakeDB)
}

func (f *fakeDB) CurrentSegment(ctx context.Context) (string, error) {
	return f.active, f.currentErr
}

func (f *fakeDB) Rotate(ctx context.Context) error {
	if f.rotateErr != nil {
		return f.rotateErr
	}
	f.rotations++
	if f.onRotate != nil {
		f.onRotate(f)
	}
	return nil
}

type fakeBucket struct {
	keyStore    keystore.KeyStore
	objects     map[string]int64
	puts        []string
	putErr      map[string]error
	remoteSize  map[string]int64
	validateErr error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{
		keyStore:   keystore.NewKeyStore("bucket", "/", false),
		objects:    make(map[string]int64),
		putErr:     make(map[string]error),
		remoteSize: make(map[string]int64),
	}
}

func (f *fakeBucket) PutSegment(ctx context.Context, key string, s segment.Segment, digests *digest.ForUpload) error {
	if err := f.putErr[s.Name()]; err != nil {
		return err
	}
	f.puts = append(f.puts, s.Name())
	f.objects[key] = digests.TotalLength()
	return nil
}

func (f *fakeBucket) ObjectSize(ctx context.Context, key string) (int64, error) {
	size, ok := f.objects[key]
	if !ok {
		return 0, bucketconfig.ErrNotFound
	}
	if override, ok := f.remoteSize[path.Base(key)]; ok {
		return override, nil
	}
	return size, nil
}

func (f *fakeBucket) ListObjects(ctx context.Context, prefix string) ([]bucketconfig.ObjectInfo, error) {
	var result []bucketconfig.ObjectInfo
	for key, size := range f.objects {
		if strings.HasPrefix(key, prefix) {
			result = append(result, bucketconfig.ObjectInfo{Key: key, Size: size})
		}
	}
	return result, nil
}

func (f *fakeBucket) GetSegment(ctx context.Context, key string, w io.Writer) (int64, error) {
	size, ok := f.objects[key]
	if !ok {
		return 0, bucketconfig.ErrNotFound
	}
	n, err := w.Write(make([]byte, size))
	return int64(n), err
}

func (f *fakeBucket) Validate(ctx context.Context) error {
	return f.validateErr
}

func (f *fakeBucket) KeyStore() *keystore.KeyStore {
	return &f.keyStore
}

func (f *fakeBucket) opener() bucketOpener {
	return func(ctx context.Context, cfg config.BucketConfig) (bucket.Client, error) {
		return f, nil
	}
}

type recordingSink struct {
	subjects []string
	bodies   []string
	err      error
}

func (r *recordingSink) Notify(ctx context.Context, subject, body string) error {
	r.subjects = append(r.subjects, subject)
	r.bodies = append(r.bodies, body)
	return r.err
}

var errTransfer = errors.New("connection reset")

func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Hostname = "db1"
	cfg.BinlogDirectory = filepath.Join(root, "binlog")
	cfg.StateFile = filepath.Join(root, "state", "uploaded.list")
	cfg.LockFile = filepath.Join(root, "run", "binlogbackup.lock")
	cfg.HistoryFile = filepath.Join(root, "state", "history.db")
	cfg.Bucket.Name = "bucket"
	cfg.Bucket.Region = "us-east-1"
	cfg.MariaDB.RotateAfter = 0
	cfg.MariaDB.RotateSettle = 0
	cfg.Mail.SubjectPrefix = "[binlog-backup]"
	if err := os.MkdirAll(cfg.BinlogDirectory, 0o755); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func writeSegment(t *testing.T, cfg config.Config, name string, size int, modTime time.Time) {
	t.Helper()
	p := filepath.Join(cfg.BinlogDirectory, name)
	if err := os.WriteFile(p, make([]byte, size), 0o640); err != nil {
		t.Fatal(err)
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(p, modTime, modTime); err != nil {
			t.Fatal(err)
		}
	}
}
