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
	"path/filepath"
	"testing"
	"time"

	"github.com/go-test/deep"
)

func openStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Error(err)
		}
	})
	return s
}

func get(t *testing.T, c *Cache, key string) (string, error) {
	t.Helper()
	var result string
	err := c.Get([]byte(key), func(value []byte) error {
		result = string(value)
		return nil
	})
	return result, err
}

func TestGenerations(t *testing.T) {
	s := openStorage(t)
	now := time.Unix(100*DefaultBucketPeriod, 0)
	s.SetClock(func() time.Time { return now })
	c := s.Cache("test")

	if _, err := get(t, c, "a"); err != NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if err := c.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}

	// One period later the value lives in the previous generation and is promoted.
	now = now.Add(DefaultBucketPeriod * time.Second)
	if v, err := get(t, c, "a"); err != nil || v != "1" {
		t.Fatalf("v=%q err=%v", v, err)
	}

	if err := c.Put([]byte("b"), []byte("2")); err != nil {
		t.Fatal(err)
	}
	// Two periods after "b" was written, its generation has been purged.
	now = now.Add(2 * DefaultBucketPeriod * time.Second)
	if err := c.Put([]byte("c"), []byte("3")); err != nil {
		t.Fatal(err)
	}
	if _, err := get(t, c, "b"); err != NotFound {
		t.Fatalf("expected NotFound for expired key, got %v", err)
	}
}

func TestForEachAndDelete(t *testing.T) {
	s := openStorage(t)
	now := time.Unix(100*DefaultBucketPeriod, 0)
	s.SetClock(func() time.Time { return now })
	c := s.Cache("test")

	if err := c.Put([]byte("1"), []byte("old")); err != nil {
		t.Fatal(err)
	}
	now = now.Add(DefaultBucketPeriod * time.Second)
	if err := c.Put([]byte("2"), []byte("new")); err != nil {
		t.Fatal(err)
	}

	var seen []string
	err := c.ForEach(func(key, value []byte) error {
		seen = append(seen, string(key)+"="+string(value))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(seen, []string{"1=old", "2=new"}); diff != nil {
		t.Fatal(diff)
	}

	if err := c.Delete([]byte("1")); err != nil {
		t.Fatal(err)
	}
	if _, err := get(t, c, "1"); err != NotFound {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
}
