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
	"sort"
	"time"
)

// Summary aggregates runs over a window.
type Summary struct {
	Start         time.Time
	End           time.Time
	Runs          int
	Uploaded      int
	UploadedBytes int64
	Failed        int
	Rotations     int
	Alerts        int
	// FailedNames are names that failed at least once in the window and were
	// not uploaded later in it.
	FailedNames []string
}

func Summarize(records []RunRecord, start, end time.Time) Summary {
	s := Summary{
		Start: start,
		End:   end,
	}
	outstanding := make(map[string]struct{})
	for _, r := range records {
		at := r.Time.Time()
		if at.Before(start) || !at.Before(end) {
			continue
		}
		s.Runs++
		s.Uploaded += r.Uploaded
		s.UploadedBytes += r.UploadedBytes
		s.Failed += r.Failed
		if r.Rotated {
			s.Rotations++
		}
		if r.Notification == NotifiedAlert {
			s.Alerts++
		}
		for _, name := range r.FailedNames {
			outstanding[name] = struct{}{}
		}
		for _, name := range r.UploadedNames {
			delete(outstanding, name)
		}
	}
	for name := range outstanding {
		s.FailedNames = append(s.FailedNames, name)
	}
	sort.Strings(s.FailedNames)
	return s
}

// Daily splits [end-days*24h, end) into per-day summaries, oldest first.
func Daily(records []RunRecord, end time.Time, days int) []Summary {
	result := make([]Summary, 0, days)
	for i := days; i > 0; i-- {
		dayStart := end.Add(-time.Duration(i) * 24 * time.Hour)
		result = append(result, Summarize(records, dayStart, dayStart.Add(24*time.Hour)))
	}
	return result
}
