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

package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/mailru/easyjson"
	"github.com/retailnext/binlogbackup/cache"
	"github.com/retailnext/binlogbackup/unixtime"
)

func openHistory(t *testing.T) *History {
	t.Helper()
	storage, err := cache.Open(filepath.Join(t.TempDir(), "history.db"), 0600)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = storage.Close()
	})
	return New(storage)
}

func TestRunRecordJSON(t *testing.T) {
	r := RunRecord{
		Time:          1760000000,
		Uploaded:      2,
		UploadedBytes: 8192,
		Failed:        1,
		UploadedNames: []string{"mysql-bin.000002", "mysql-bin.000003"},
		FailedNames:   []string{"mysql-bin.000004"},
		Rotated:       true,
		Pending:       1,
		Notification:  NotifiedAlert,
	}
	data, err := easyjson.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var got RunRecord
	if err := easyjson.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(got, r); diff != nil {
		t.Error(diff)
	}
}

func TestRunRecordIgnoresUnknownFields(t *testing.T) {
	var got RunRecord
	data := []byte(`{"time":1760000000,"extra":{"a":[1,2]},"uploaded":3,"failed_names":null}`)
	if err := easyjson.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	want := RunRecord{Time: 1760000000, Uploaded: 3}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}
}

func TestSinceAndLast(t *testing.T) {
	h := openHistory(t)
	base := time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		r := RunRecord{
			Time:     unixtime.Of(base.Add(time.Duration(i) * 15 * time.Minute)),
			Uploaded: i,
		}
		if err := h.Record(r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := h.Since(base.Add(30 * time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Uploaded != 2 || got[1].Uploaded != 3 {
		t.Errorf("unexpected records %+v", got)
	}

	last, err := h.Last(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(last) != 3 || last[0].Uploaded != 1 || last[2].Uploaded != 3 {
		t.Errorf("unexpected records %+v", last)
	}
}

func TestFailureCounts(t *testing.T) {
	h := openHistory(t)
	const name = "mysql-bin.000002"
	if count, err := h.FailureCount(name); err != nil || count != 0 {
		t.Fatalf("count=%d err=%v", count, err)
	}
	for want := 1; want <= 3; want++ {
		count, err := h.IncrementFailure(name)
		if err != nil {
			t.Fatal(err)
		}
		if count != want {
			t.Errorf("count=%d want %d", count, want)
		}
	}
	if err := h.ResetFailure(name); err != nil {
		t.Fatal(err)
	}
	if count, err := h.FailureCount(name); err != nil || count != 0 {
		t.Fatalf("count=%d err=%v", count, err)
	}
}

func TestSummarize(t *testing.T) {
	end := time.Date(2026, time.October, 20, 8, 0, 0, 0, time.UTC)
	records := []RunRecord{
		{Time: unixtime.Of(end.Add(-30 * time.Hour)), Uploaded: 9},
		{Time: unixtime.Of(end.Add(-20 * time.Hour)), Uploaded: 1, UploadedBytes: 100, UploadedNames: []string{"b.1"}},
		{Time: unixtime.Of(end.Add(-10 * time.Hour)), Failed: 2, FailedNames: []string{"b.2", "b.3"}, Notification: NotifiedAlert},
		{Time: unixtime.Of(end.Add(-5 * time.Hour)), Uploaded: 1, UploadedBytes: 50, UploadedNames: []string{"b.2"}, Rotated: true},
	}
	got := Summarize(records, end.Add(-24*time.Hour), end)
	want := Summary{
		Start:         end.Add(-24 * time.Hour),
		End:           end,
		Runs:          3,
		Uploaded:      2,
		UploadedBytes: 150,
		Failed:        2,
		Rotations:     1,
		Alerts:        1,
		FailedNames:   []string{"b.3"},
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}

	days := Daily(records, end, 2)
	if len(days) != 2 {
		t.Fatalf("got %d days", len(days))
	}
	if days[0].Uploaded != 9 || days[1].Uploaded != 2 {
		t.Errorf("unexpected daily breakdown %+v", days)
	}
}
