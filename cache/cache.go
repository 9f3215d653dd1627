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

package cache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/retailnext/binlogbackup/metrics"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	DoNotPromote = errors.New("do not promote")
	NotFound     = errors.New("not found")
)

// DefaultBucketPeriod is ~12 days, so at least that much history is retained.
const DefaultBucketPeriod = 1 << 20

func Open(path string, mode os.FileMode) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, mode, &bbolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	ensureFileOwnership(path)
	s := &Storage{
		db:           db,
		bucketPeriod: DefaultBucketPeriod,
		now:          time.Now,
	}
	return s, nil
}

// ensureFileOwnership keeps the database owned by the same uid/gid as the containing directory.
// Without this, running the tool once as root can make the db unusable by the user it normally runs as.
func ensureFileOwnership(path string) {
	if os.Geteuid() != 0 {
		return
	}
	lgr := zap.S()
	dbInfo, err := os.Stat(path)
	if err != nil {
		lgr.Errorw("cache_db_stat_error", "err", err)
		return
	}
	parent := filepath.Dir(path)
	parentInfo, err := os.Stat(parent)
	if err != nil {
		lgr.Errorw("cache_db_stat_error", "err", err)
		return
	}
	dbStat, ok := dbInfo.Sys().(*syscall.Stat_t)
	if !ok {
		lgr.Warnw("cache_db_stat_unsupported")
		return
	}
	parentStat, ok := parentInfo.Sys().(*syscall.Stat_t)
	if !ok {
		lgr.Warnw("cache_db_stat_unsupported")
		return
	}
	if dbStat.Uid != parentStat.Uid || dbStat.Gid != parentStat.Gid {
		err = os.Chown(path, int(parentStat.Uid), int(parentStat.Gid))
		if err != nil {
			lgr.Errorw("cache_db_chown_error", "err", err)
		} else {
			lgr.Infow("cache_db_chown_ok", "uid", parentStat.Uid, "gid", parentStat.Gid)
		}
	}
}

type Storage struct {
	db           *bbolt.DB
	bucketPeriod int64
	now          func() time.Time
}

func (s *Storage) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// SetClock replaces the time source used to pick generations.
func (s *Storage) SetClock(now func() time.Time) {
	s.now = now
}

type Cache struct {
	storage  *Storage
	name     []byte
	counters *metrics.CacheCounters
}

func (s *Storage) Cache(name string) *Cache {
	return &Cache{
		storage:  s,
		name:     []byte(name),
		counters: metrics.NewCacheCounters(name),
	}
}

type WithValueFunc func(value []byte) error

func (c *Cache) Get(key []byte, f WithValueFunc) error {
	var valueToPromote []byte
	viewErr := c.storage.db.View(func(tx *bbolt.Tx) error {
		currentTop, previousTop := c.storage.currentAndPreviousTopBuckets()
		if bucket := c.bucketIn(tx, currentTop); bucket != nil {
			if value := bucket.Get(key); value != nil {
				return f(value)
			}
		}
		if bucket := c.bucketIn(tx, previousTop); bucket != nil {
			if value := bucket.Get(key); value != nil {
				valueToPromote = make([]byte, len(value))
				copy(valueToPromote, value)
				return f(value)
			}
		}
		return NotFound
	})
	if viewErr != nil {
		c.counters.Misses.Inc()
		return viewErr
	}
	c.counters.Hits.Inc()
	if valueToPromote == nil {
		return nil
	}
	c.counters.Promotions.Inc()
	return c.put(key, valueToPromote)
}

// ForEach visits entries of the previous generation and then the current one,
// each in key order. A key present in both is visited twice.
func (c *Cache) ForEach(f func(key, value []byte) error) error {
	return c.storage.db.View(func(tx *bbolt.Tx) error {
		currentTop, previousTop := c.storage.currentAndPreviousTopBuckets()
		for _, top := range [][]byte{previousTop, currentTop} {
			bucket := c.bucketIn(tx, top)
			if bucket == nil {
				continue
			}
			if err := bucket.ForEach(f); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Cache) Put(key, value []byte) error {
	c.counters.Puts.Inc()
	return c.put(key, value)
}

// Delete removes key from every retained generation.
func (c *Cache) Delete(key []byte) error {
	return c.storage.db.Update(func(tx *bbolt.Tx) error {
		currentTop, previousTop := c.storage.currentAndPreviousTopBuckets()
		for _, top := range [][]byte{previousTop, currentTop} {
			bucket := c.bucketIn(tx, top)
			if bucket == nil {
				continue
			}
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Cache) bucketIn(tx *bbolt.Tx, top []byte) *bbolt.Bucket {
	topBucket := tx.Bucket(top)
	if topBucket == nil {
		return nil
	}
	return topBucket.Bucket(c.name)
}

func (c *Cache) put(key, value []byte) error {
	lgr := zap.S()
	return c.storage.db.Update(func(tx *bbolt.Tx) error {
		currentTop, previousTop := c.storage.currentAndPreviousTopBuckets()
		topBucket := tx.Bucket(currentTop)
		if topBucket == nil {
			// Current (time-based) top bucket does not exist. Purge old ones then create it.

			var topBucketsToDelete [][]byte
			iterBucketsErr := tx.ForEach(func(topBucketName []byte, b *bbolt.Bucket) error {
				if bytes.Equal(topBucketName, currentTop) || bytes.Equal(topBucketName, previousTop) {
					return nil
				}
				topBucketsToDelete = append(topBucketsToDelete, topBucketName)
				return nil
			})
			if iterBucketsErr != nil {
				return iterBucketsErr
			}
			for _, topBucketName := range topBucketsToDelete {
				if err := tx.DeleteBucket(topBucketName); err != nil {
					return err
				}
				lgr.Debugw("cache_periodic_bucket_removed", "periodic", topBucketName)
			}

			if maybeTopBucket, err := tx.CreateBucket(currentTop); err != nil {
				return err
			} else {
				lgr.Debugw("cache_periodic_bucket_created", "periodic", currentTop)
				topBucket = maybeTopBucket
			}
		}

		bucket, err := topBucket.CreateBucketIfNotExists(c.name)
		if err != nil {
			return err
		}
		return bucket.Put(key, value)
	})
}

func (s *Storage) currentAndPreviousTopBuckets() ([]byte, []byte) {
	now := s.now().Unix()
	currentTs := (now / s.bucketPeriod) * s.bucketPeriod
	previousTs := currentTs - s.bucketPeriod

	current := make([]byte, 8)
	binary.BigEndian.PutUint64(current, uint64(currentTs))

	previous := make([]byte, 8)
	binary.BigEndian.PutUint64(previous, uint64(previousTs))
	return current, previous
}
