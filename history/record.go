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
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
	"github.com/retailnext/binlogbackup/unixtime"
)

// Notification kinds stored in RunRecord.Notification.
const (
	NotifiedNone   = ""
	NotifiedAlert  = "alert"
	NotifiedDaily  = "daily"
	NotifiedWeekly = "weekly"
)

// RunRecord is the outcome of one sync invocation.
type RunRecord struct {
	Time          unixtime.Seconds `json:"time"`
	Uploaded      int              `json:"uploaded"`
	UploadedBytes int64            `json:"uploaded_bytes"`
	Failed        int              `json:"failed"`
	UploadedNames []string         `json:"uploaded_names"`
	FailedNames   []string         `json:"failed_names"`
	Rotated       bool             `json:"rotated"`
	Pending       int              `json:"pending"`
	Notification  string           `json:"notification"`
}

func writeStrings(w *jwriter.Writer, values []string) {
	w.RawByte('[')
	for i, v := range values {
		if i > 0 {
			w.RawByte(',')
		}
		w.String(v)
	}
	w.RawByte(']')
}

func readStrings(l *jlexer.Lexer) []string {
	result := []string{}
	l.Delim('[')
	for !l.IsDelim(']') {
		result = append(result, l.String())
		l.WantComma()
	}
	l.Delim(']')
	return result
}

func (r RunRecord) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"time":`)
	r.Time.MarshalEasyJSON(w)
	w.RawString(`,"uploaded":`)
	w.Int(r.Uploaded)
	w.RawString(`,"uploaded_bytes":`)
	w.Int64(r.UploadedBytes)
	w.RawString(`,"failed":`)
	w.Int(r.Failed)
	w.RawString(`,"uploaded_names":`)
	writeStrings(w, r.UploadedNames)
	w.RawString(`,"failed_names":`)
	writeStrings(w, r.FailedNames)
	w.RawString(`,"rotated":`)
	w.Bool(r.Rotated)
	w.RawString(`,"pending":`)
	w.Int(r.Pending)
	w.RawString(`,"notification":`)
	w.String(r.Notification)
	w.RawByte('}')
}

func (r *RunRecord) UnmarshalEasyJSON(l *jlexer.Lexer) {
	if l.IsNull() {
		l.Skip()
		return
	}
	l.Delim('{')
	for !l.IsDelim('}') {
		key := l.UnsafeFieldName(false)
		l.WantColon()
		if l.IsNull() {
			l.Skip()
			l.WantComma()
			continue
		}
		switch key {
		case "time":
			r.Time.UnmarshalEasyJSON(l)
		case "uploaded":
			r.Uploaded = l.Int()
		case "uploaded_bytes":
			r.UploadedBytes = l.Int64()
		case "failed":
			r.Failed = l.Int()
		case "uploaded_names":
			r.UploadedNames = readStrings(l)
		case "failed_names":
			r.FailedNames = readStrings(l)
		case "rotated":
			r.Rotated = l.Bool()
		case "pending":
			r.Pending = l.Int()
		case "notification":
			r.Notification = l.String()
		default:
			l.SkipRecursive()
		}
		l.WantComma()
	}
	l.Delim('}')
	l.Consumed()
}
