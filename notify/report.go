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

package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/alecthomas/units"
	"github.com/retailnext/binlogbackup/history"
)

const (
	KindAlert        = history.NotifiedAlert
	KindInfo         = "info"
	KindDaily        = history.NotifiedDaily
	KindWeekly       = history.NotifiedWeekly
	KindPrecondition = "precondition"
)

type Report struct {
	Kind    string
	Subject string
	Body    string
}

// Formatter renders reports for one host.
type Formatter struct {
	Host   string
	Prefix string
}

func (f Formatter) subject(label string) string {
	return strings.TrimSpace(fmt.Sprintf("%s %s %s", f.Prefix, f.Host, label))
}

func formatBytes(n int64) string {
	return units.Base2Bytes(n).String()
}

func writeNames(b *strings.Builder, title string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, name := range names {
		fmt.Fprintf(b, "  %s\n", name)
	}
}

// Alert reports a run with upload failures. escalated lists the segments whose
// consecutive failures reached the threshold.
func (f Formatter) Alert(r history.RunRecord, escalated []string) Report {
	label := "ALERT"
	if len(escalated) > 0 {
		label = "ALERT repeated upload failures"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Binary log backup on %s at %s had upload failures.\n\n", f.Host, r.Time)
	fmt.Fprintf(&b, "Uploaded: %d (%s)\n", r.Uploaded, formatBytes(r.UploadedBytes))
	fmt.Fprintf(&b, "Failed:   %d\n", r.Failed)
	fmt.Fprintf(&b, "Pending:  %d\n", r.Pending)
	writeNames(&b, "Failed segments (retried next run)", r.FailedNames)
	writeNames(&b, "Failing repeatedly", escalated)
	return Report{Kind: KindAlert, Subject: f.subject(label), Body: b.String()}
}

// HighVolume reports an unusually large number of uploads in one run.
func (f Formatter) HighVolume(r history.RunRecord, expected int) Report {
	var b strings.Builder
	fmt.Fprintf(&b, "Binary log backup on %s at %s uploaded %d segments (%s); about %d are expected per run.\n",
		f.Host, r.Time, r.Uploaded, formatBytes(r.UploadedBytes), expected)
	writeNames(&b, "Uploaded segments", r.UploadedNames)
	return Report{Kind: KindInfo, Subject: f.subject("INFO"), Body: b.String()}
}

// Precondition reports a run that could not start.
func (f Formatter) Precondition(at time.Time, err error) Report {
	var b strings.Builder
	fmt.Fprintf(&b, "Binary log backup on %s at %s could not run.\n\n%v\n", f.Host, at.UTC().Format(time.RFC3339), err)
	return Report{Kind: KindPrecondition, Subject: f.subject("ALERT"), Body: b.String()}
}

func writeSummary(b *strings.Builder, s history.Summary) {
	fmt.Fprintf(b, "Period:    %s to %s\n", s.Start.UTC().Format(time.RFC3339), s.End.UTC().Format(time.RFC3339))
	fmt.Fprintf(b, "Runs:      %d\n", s.Runs)
	fmt.Fprintf(b, "Uploaded:  %d (%s)\n", s.Uploaded, formatBytes(s.UploadedBytes))
	fmt.Fprintf(b, "Failures:  %d\n", s.Failed)
	fmt.Fprintf(b, "Rotations: %d\n", s.Rotations)
	fmt.Fprintf(b, "Alerts:    %d\n", s.Alerts)
	writeNames(b, "Still failing", s.FailedNames)
}

func (f Formatter) Daily(s history.Summary, stateEntries int) Report {
	var b strings.Builder
	fmt.Fprintf(&b, "Binary log backup daily summary for %s.\n\n", f.Host)
	writeSummary(&b, s)
	fmt.Fprintf(&b, "\nState store entries: %d\n", stateEntries)
	return Report{Kind: KindDaily, Subject: f.subject("Daily summary"), Body: b.String()}
}

func (f Formatter) Weekly(s history.Summary, days []history.Summary, stateEntries int) Report {
	var b strings.Builder
	fmt.Fprintf(&b, "Binary log backup weekly report for %s.\n\n", f.Host)
	writeSummary(&b, s)
	b.WriteString("\nPer day:\n")
	for _, d := range days {
		fmt.Fprintf(&b, "  %s  runs=%d uploaded=%d bytes=%s failed=%d rotations=%d\n",
			d.Start.UTC().Format("2006-01-02 Mon"), d.Runs, d.Uploaded, formatBytes(d.UploadedBytes), d.Failed, d.Rotations)
	}
	fmt.Fprintf(&b, "\nState store entries: %d\n", stateEntries)
	return Report{Kind: KindWeekly, Subject: f.subject("Weekly report"), Body: b.String()}
}
