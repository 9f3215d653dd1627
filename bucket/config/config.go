// Copyright 2020 RetailNext, Inc.
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

package config

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("object not found")
	ErrDigestMismatch = errors.New("downloaded object does not match its recorded digest")
)

const (
	ListRetriesLimit     = 3
	RetrySleepPerAttempt = time.Second
	PartUploadLimit      = 4
)

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}
