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

package restore

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/retailnext/binlogbackup/bucket/config"
	"github.com/retailnext/binlogbackup/bucket/keystore"
	"go.uber.org/zap"
)

// Selection narrows the stored segments to restore. Zero values are unbounded.
type Selection struct {
	// From and To are inclusive segment name bounds.
	From string
	To   string
	// NotBefore and NotAfter bound the time the object was stored.
	NotBefore time.Time
	NotAfter  time.Time
}

type Item struct {
	Name         string
	Key          string
	Size         int64
	LastModified time.Time
}

// Plan picks the objects to restore, ordered by segment sequence. When a name
// was stored more than once the most recently stored object wins.
func Plan(objects []config.ObjectInfo, keyStore *keystore.KeyStore, host string, sel Selection) []Item {
	lgr := zap.S()
	byName := make(map[string]Item)
	for _, obj := range objects {
		name, err := keyStore.SegmentNameFromKey(host, obj.Key)
		if err != nil {
			lgr.Warnw("unexpected_key", "key", obj.Key, "err", err)
			continue
		}
		if sel.From != "" && compareNames(name, sel.From) < 0 {
			continue
		}
		if sel.To != "" && compareNames(name, sel.To) > 0 {
			continue
		}
		if !sel.NotBefore.IsZero() && obj.LastModified.Before(sel.NotBefore) {
			continue
		}
		if !sel.NotAfter.IsZero() && obj.LastModified.After(sel.NotAfter) {
			continue
		}
		item := Item{
			Name:         name,
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		}
		if existing, ok := byName[name]; ok {
			lgr.Warnw("duplicate_segment", "segment", name, "keys", []string{existing.Key, obj.Key})
			if !item.LastModified.After(existing.LastModified) {
				continue
			}
		}
		byName[name] = item
	}

	result := make([]Item, 0, len(byName))
	for _, item := range byName {
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool {
		return compareNames(result[i].Name, result[j].Name) < 0
	})
	return result
}

// compareNames orders segment names by their numeric suffix, so that
// mysql-bin.999999 sorts before mysql-bin.1000000.
func compareNames(a, b string) int {
	aBase, aSeq, aOk := splitName(a)
	bBase, bSeq, bOk := splitName(b)
	if aOk && bOk && aBase == bBase {
		switch {
		case aSeq < bSeq:
			return -1
		case aSeq > bSeq:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

func splitName(name string) (string, uint64, bool) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return "", 0, false
	}
	seq, err := strconv.ParseUint(name[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return name[:i], seq, true
}
