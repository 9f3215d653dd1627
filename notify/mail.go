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
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/retailnext/binlogbackup/config"
)

const (
	sendAttempts    = 3
	sendMaxDuration = 30 * time.Second
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type MailSink struct {
	cfg     config.MailConfig
	send    sendFunc
	now     func() time.Time
	backOff func() backoff.BackOff
}

func NewMailSink(cfg config.MailConfig) *MailSink {
	return &MailSink{
		cfg:  cfg,
		send: smtp.SendMail,
		now:  time.Now,
		backOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

func (m *MailSink) Notify(ctx context.Context, subject, body string) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	msg := m.message(subject, body)

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, m.send(addr, auth, m.cfg.From, m.cfg.To, msg)
	},
		backoff.WithBackOff(m.backOff()),
		backoff.WithMaxTries(sendAttempts),
		backoff.WithMaxElapsedTime(sendMaxDuration),
	)
	if err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	return nil
}

func (m *MailSink) message(subject, body string) []byte {
	var buf bytes.Buffer
	header := func(k, v string) {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(v)
		buf.WriteString("\r\n")
	}
	header("From", m.cfg.From)
	header("To", strings.Join(m.cfg.To, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", m.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=utf-8")
	header("Content-Transfer-Encoding", "8bit")
	buf.WriteString("\r\n")
	for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}
