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

// Package cadence decides how loudly to report a sync run.
package cadence

import (
	"time"
)

type Decision string

const (
	Silent               Decision = "silent"
	ImmediateAlert       Decision = "alert"
	DailySummary         Decision = "daily"
	WeeklyDetailedReport Decision = "weekly"
)

type Reason string

const (
	ReasonUploadFailure Reason = "upload_failure"
	ReasonHighVolume    Reason = "high_volume"
	ReasonWeeklyDay     Reason = "weekly_day"
	ReasonSummaryHour   Reason = "summary_hour"
	ReasonAlreadySent   Reason = "already_sent"
	ReasonNothingToSay  Reason = "nothing_to_say"
)

type Policy struct {
	SummaryHour        int
	WeeklyDay          time.Weekday
	ExpectedPerRun     int
	HighVolumeMultiple int
}

type Input struct {
	Now      time.Time
	Uploaded int
	Failed   int
	// SummarySentThisHour is true when an earlier run in the same hour of
	// Now already sent a daily or weekly summary.
	SummarySentThisHour bool
}

type Outcome struct {
	Decision Decision
	Reason   Reason
}

// Decide applies, in order: failure alert, high volume alert, weekly report,
// daily summary, silence. Summaries go out at most once per hour.
func (p Policy) Decide(in Input) Outcome {
	if in.Failed > 0 {
		return Outcome{Decision: ImmediateAlert, Reason: ReasonUploadFailure}
	}
	if p.isHighVolume(in.Uploaded) {
		return Outcome{Decision: ImmediateAlert, Reason: ReasonHighVolume}
	}
	if in.Now.Hour() != p.SummaryHour {
		return Outcome{Decision: Silent, Reason: ReasonNothingToSay}
	}
	if in.SummarySentThisHour {
		return Outcome{Decision: Silent, Reason: ReasonAlreadySent}
	}
	if in.Now.Weekday() == p.WeeklyDay {
		return Outcome{Decision: WeeklyDetailedReport, Reason: ReasonWeeklyDay}
	}
	return Outcome{Decision: DailySummary, Reason: ReasonSummaryHour}
}

func (p Policy) isHighVolume(uploaded int) bool {
	if p.ExpectedPerRun <= 0 || p.HighVolumeMultiple <= 0 {
		return false
	}
	return uploaded > p.ExpectedPerRun*p.HighVolumeMultiple
}

// SameHour reports whether a and b fall in the same calendar hour of a's
// location.
func SameHour(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay() && a.Hour() == b.Hour()
}
