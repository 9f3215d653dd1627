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

// Package notify formats operator reports and delivers them.
package notify

import (
	"context"

	"github.com/retailnext/binlogbackup/config"
	"github.com/retailnext/binlogbackup/metrics"
	"go.uber.org/zap"
)

type Sink interface {
	Notify(ctx context.Context, subject, body string) error
}

// NewSink returns a mail sink when a mail host is configured, and a sink that
// only logs otherwise.
func NewSink(cfg config.MailConfig) Sink {
	if cfg.Host == "" {
		return LogSink{}
	}
	return NewMailSink(cfg)
}

type LogSink struct{}

func (LogSink) Notify(ctx context.Context, subject, body string) error {
	zap.S().Infow("notification", "subject", subject, "body", body)
	return nil
}

// Deliver sends r through sink. Delivery problems are logged and counted but
// never returned, so reporting cannot fail a run.
func Deliver(ctx context.Context, sink Sink, r Report) bool {
	if err := sink.Notify(ctx, r.Subject, r.Body); err != nil {
		metrics.Notify.ErrorsVec.WithLabelValues(r.Kind).Inc()
		zap.S().Errorw("notify_error", "kind", r.Kind, "subject", r.Subject, "err", err)
		return false
	}
	metrics.Notify.Sent(r.Kind).Inc()
	zap.S().Infow("notify_sent", "kind", r.Kind, "subject", r.Subject)
	return true
}
