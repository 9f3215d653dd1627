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
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-test/deep"
	"github.com/retailnext/binlogbackup/config"
	"github.com/retailnext/binlogbackup/history"
	"github.com/retailnext/binlogbackup/unixtime"
)

type recordingSink struct {
	subjects []string
	err      error
}

func (r *recordingSink) Notify(ctx context.Context, subject, body string) error {
	r.subjects = append(r.subjects, subject)
	return r.err
}

var formatter = Formatter{Host: "db1", Prefix: "[binlog-backup]"}

func TestSubjects(t *testing.T) {
	rec := history.RunRecord{
		Time:        unixtime.Of(time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)),
		Failed:      1,
		FailedNames: []string{"mysql-bin.000002"},
	}
	got := []string{
		formatter.Alert(rec, nil).Subject,
		formatter.Alert(rec, []string{"mysql-bin.000002"}).Subject,
		formatter.HighVolume(rec, 2).Subject,
		formatter.Daily(history.Summary{}, 3).Subject,
		formatter.Weekly(history.Summary{}, nil, 3).Subject,
		formatter.Precondition(time.Now(), errors.New("boom")).Subject,
	}
	want := []string{
		"[binlog-backup] db1 ALERT",
		"[binlog-backup] db1 ALERT repeated upload failures",
		"[binlog-backup] db1 INFO",
		"[binlog-backup] db1 Daily summary",
		"[binlog-backup] db1 Weekly report",
		"[binlog-backup] db1 ALERT",
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}
}

func TestAlertBody(t *testing.T) {
	rec := history.RunRecord{
		Time:          unixtime.Of(time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)),
		Uploaded:      1,
		UploadedBytes: 4096,
		Failed:        1,
		FailedNames:   []string{"mysql-bin.000002"},
	}
	body := formatter.Alert(rec, []string{"mysql-bin.000002"}).Body
	for _, want := range []string{"Uploaded: 1 (4KiB)", "Failed:   1", "mysql-bin.000002", "Failing repeatedly"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestWeeklyBody(t *testing.T) {
	end := time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)
	days := []history.Summary{
		{Start: end.Add(-48 * time.Hour), Runs: 96, Uploaded: 40},
		{Start: end.Add(-24 * time.Hour), Runs: 96, Uploaded: 41},
	}
	body := formatter.Weekly(history.Summary{Start: end.Add(-7 * 24 * time.Hour), End: end, Uploaded: 81}, days, 120).Body
	for _, want := range []string{"2026-10-17 Sat  runs=96 uploaded=40", "2026-10-18 Sun", "State store entries: 120"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestDeliver(t *testing.T) {
	ok := &recordingSink{}
	if !Deliver(context.Background(), ok, Report{Kind: KindDaily, Subject: "s"}) {
		t.Error("expected delivery")
	}
	failing := &recordingSink{err: errors.New("smtp down")}
	if Deliver(context.Background(), failing, Report{Kind: KindAlert, Subject: "s"}) {
		t.Error("expected failure")
	}
	if len(failing.subjects) != 1 {
		t.Errorf("expected one attempt, got %d", len(failing.subjects))
	}
}

func TestNewSink(t *testing.T) {
	if _, ok := NewSink(config.MailConfig{}).(LogSink); !ok {
		t.Error("expected log sink without a mail host")
	}
	if _, ok := NewSink(config.MailConfig{Host: "smtp.example.com"}).(*MailSink); !ok {
		t.Error("expected mail sink")
	}
}

func TestMailSinkRetries(t *testing.T) {
	var calls int
	var gotAddr string
	var gotMsg []byte
	m := NewMailSink(config.MailConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "backup@example.com",
		To:   []string{"ops@example.com", "dba@example.com"},
	})
	m.now = func() time.Time {
		return time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)
	}
	m.backOff = func() backoff.BackOff {
		return &backoff.ZeroBackOff{}
	}
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		calls++
		gotAddr = addr
		gotMsg = msg
		if calls == 1 {
			return errors.New("temporary failure")
		}
		return nil
	}
	if err := m.Notify(context.Background(), "[binlog-backup] db1 ALERT", "line one\nline two\n"); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("calls=%d", calls)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr=%s", gotAddr)
	}
	msg := string(gotMsg)
	for _, want := range []string{
		"From: backup@example.com\r\n",
		"To: ops@example.com, dba@example.com\r\n",
		"Subject: [binlog-backup] db1 ALERT\r\n",
		"\r\n\r\nline one\r\nline two\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestMailSinkGivesUp(t *testing.T) {
	var calls int
	m := NewMailSink(config.MailConfig{Host: "smtp.example.com", Port: 25, From: "a@example.com", To: []string{"b@example.com"}})
	m.backOff = func() backoff.BackOff {
		return &backoff.ZeroBackOff{}
	}
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		calls++
		return errors.New("refused")
	}
	if err := m.Notify(context.Background(), "s", "b"); err == nil {
		t.Fatal("expected error")
	}
	if calls != sendAttempts {
		t.Errorf("calls=%d", calls)
	}
}
