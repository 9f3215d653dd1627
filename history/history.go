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

// Package history keeps recent run outcomes and per-segment failure counts in
// the local bbolt cache, for summaries and failure escalation.
package history

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/mailru/easyjson"
	"github.com/retailnext/binlogbackup/cache"
	"github.com/retailnext/binlogbackup/unixtime"
)

const (
	runsCacheName     = "runs"
	failuresCacheName = "failures"
)

type History struct {
	runs     *cache.Cache
	failures *cache.Cache
}

func New(storage *cache.Storage) *History {
	return &History{
		runs:     storage.Cache(runsCacheName),
		failures: storage.Cache(failuresCacheName),
	}
}

func (h *History) Record(r RunRecord) error {
	value, err := easyjson.Marshal(r)
	if err != nil {
		return err
	}
	return h.runs.Put([]byte(r.Time.Decimal()), value)
}

// Since returns the runs at or after t, oldest first.
func (h *History) Since(t time.Time) ([]RunRecord, error) {
	lowerBound := []byte(unixtime.Of(t).Decimal())
	byKey := make(map[string]RunRecord)
	err := h.runs.ForEach(func(key, value []byte) error {
		if string(key) < string(lowerBound) {
			return nil
		}
		var r RunRecord
		if err := easyjson.Unmarshal(value, &r); err != nil {
			return err
		}
		byKey[string(key)] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	result := make([]RunRecord, 0, len(byKey))
	for _, r := range byKey {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Time < result[j].Time
	})
	return result, nil
}

// Last returns up to n of the most recent runs, oldest first.
func (h *History) Last(n int) ([]RunRecord, error) {
	all, err := h.Since(time.Unix(0, 0))
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (h *History) FailureCount(name string) (int, error) {
	var count uint64
	err := h.failures.Get([]byte(name), func(value []byte) error {
		if len(value) == 8 {
			count = binary.BigEndian.Uint64(value)
		}
		return nil
	})
	if err == cache.NotFound {
		return 0, nil
	}
	return int(count), err
}

// IncrementFailure bumps the consecutive failure count for name and returns it.
func (h *History) IncrementFailure(name string) (int, error) {
	count, err := h.FailureCount(name)
	if err != nil {
		return 0, err
	}
	count++
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, uint64(count))
	if err := h.failures.Put([]byte(name), value); err != nil {
		return 0, err
	}
	return count, nil
}

func (h *History) ResetFailure(name string) error {
	return h.failures.Delete([]byte(name))
}
