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
	"time"

	"github.com/retailnext/binlogbackup/cadence"
	"github.com/retailnext/binlogbackup/config"
	"github.com/retailnext/binlogbackup/history"
	"github.com/retailnext/binlogbackup/notify"
	"github.com/retailnext/binlogbackup/unixtime"
	"go.uber.org/zap"
)

const (
	dailyWindow  = 24 * time.Hour
	weeklyWindow = 7 * dailyWindow
)

// Reporter turns sync results into notifications and run history.
type Reporter struct {
	policy         cadence.Policy
	expectedPerRun int
	formatter      notify.Formatter
	sink           notify.Sink
	history        *history.History
}

func NewReporter(cfg config.Config, sink notify.Sink, hist *history.History) *Reporter {
	return &Reporter{
		policy: cadence.Policy{
			SummaryHour:        cfg.Report.SummaryHour,
			WeeklyDay:          cfg.Report.WeeklyDay.Weekday(),
			ExpectedPerRun:     cfg.Report.ExpectedPerRun,
			HighVolumeMultiple: cfg.Report.HighVolumeMultiple,
		},
		expectedPerRun: cfg.Report.ExpectedPerRun,
		formatter: notify.Formatter{
			Host:   cfg.Hostname,
			Prefix: cfg.Mail.SubjectPrefix,
		},
		sink:    sink,
		history: hist,
	}
}

// Report decides on and sends the notification for one run, then records the
// run. stateEntries is the state store size after the run.
func (r *Reporter) Report(ctx context.Context, now time.Time, result Result, stateEntries int) (cadence.Outcome, error) {
	lgr := zap.S()
	record := history.RunRecord{
		Time:          unixtime.Of(now),
		Uploaded:      result.Uploaded,
		UploadedBytes: result.UploadedBytes,
		Failed:        result.Failed,
		UploadedNames: result.UploadedNames,
		FailedNames:   result.FailedNames,
		Rotated:       result.Rotated,
		Pending:       result.Pending,
	}

	previous, err := r.history.Since(now.Add(-weeklyWindow))
	if err != nil {
		return cadence.Outcome{}, err
	}
	outcome := r.policy.Decide(cadence.Input{
		Now:                 now,
		Uploaded:            result.Uploaded,
		Failed:              result.Failed,
		SummarySentThisHour: summarySentInHourOf(previous, now),
	})
	lgr.Infow("cadence_decision", "decision", outcome.Decision, "reason", outcome.Reason)

	var report notify.Report
	switch outcome.Decision {
	case cadence.ImmediateAlert:
		if outcome.Reason == cadence.ReasonHighVolume {
			report = r.formatter.HighVolume(record, r.expectedPerRun)
		} else {
			report = r.formatter.Alert(record, result.Escalated)
		}
	case cadence.DailySummary, cadence.WeeklyDetailedReport:
		// Include this run, which is not recorded yet.
		all := append(previous, record)
		end := now.Add(time.Second)
		if outcome.Decision == cadence.DailySummary {
			report = r.formatter.Daily(history.Summarize(all, end.Add(-dailyWindow), end), stateEntries)
		} else {
			report = r.formatter.Weekly(history.Summarize(all, end.Add(-weeklyWindow), end), history.Daily(all, end, 7), stateEntries)
		}
	}

	if report.Kind != "" && notify.Deliver(ctx, r.sink, report) {
		record.Notification = notificationFor(outcome.Decision)
	}
	if err := r.history.Record(record); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// ReportPrecondition alerts that a run could not start.
func (r *Reporter) ReportPrecondition(ctx context.Context, now time.Time, err error) {
	notify.Deliver(ctx, r.sink, r.formatter.Precondition(now, err))
}

func notificationFor(d cadence.Decision) string {
	switch d {
	case cadence.ImmediateAlert:
		return history.NotifiedAlert
	case cadence.DailySummary:
		return history.NotifiedDaily
	case cadence.WeeklyDetailedReport:
		return history.NotifiedWeekly
	}
	return history.NotifiedNone
}

func summarySentInHourOf(records []history.RunRecord, now time.Time) bool {
	for _, rec := range records {
		if rec.Notification != history.NotifiedDaily && rec.Notification != history.NotifiedWeekly {
			continue
		}
		if cadence.SameHour(now, rec.Time.Time()) {
			return true
		}
	}
	return false
}
