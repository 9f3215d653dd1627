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
	"errors"
	"fmt"
)

// PreconditionError means a run could not start: the database, the binary log
// directory or the bucket was unavailable. Nothing was uploaded or recorded.
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s: %v", e.Op, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

func IsPrecondition(err error) bool {
	var p *PreconditionError
	return errors.As(err, &p)
}

// SizeMismatch means the stored object does not have the local segment's size.
type SizeMismatch struct {
	Key    string
	Local  int64
	Remote int64
}

func (e *SizeMismatch) Error() string {
	return fmt.Sprintf("size mismatch for %s: local %d remote %d", e.Key, e.Local, e.Remote)
}
