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

// Package segment finds rotated binary log segments and guards them against
// being modified between inspection and upload.
package segment

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

type Segment struct {
	path        string
	fingerprint fingerprint
}

func New(path string) (Segment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Segment{}, err
	}
	return NewFromInfo(path, info), nil
}

func NewFromInfo(path string, info os.FileInfo) Segment {
	s := Segment{
		path: path,
	}
	s.fingerprint.fromInfo(info)
	return s
}

func (s Segment) Path() string {
	return s.path
}

// Name is the base file name, which is also the state store entry.
func (s Segment) Name() string {
	return filepath.Base(s.path)
}

func (s Segment) Len() int64 {
	return s.fingerprint.size
}

func (s Segment) ModTime() time.Time {
	return s.fingerprint.mtime
}

func (s Segment) Check() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	return s.check(info)
}

func (s Segment) check(info os.FileInfo) error {
	var current fingerprint
	current.fromInfo(info)
	if s.fingerprint != current {
		return FingerprintMismatch{
			name:     s.path,
			expected: s.fingerprint,
			actual:   current,
		}
	}
	return nil
}

// Open fails if the file no longer matches the fingerprint taken at listing time.
func (s Segment) Open() (*os.File, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err == nil {
		err = s.check(info)
	}
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			panic(closeErr)
		}
		return nil, err
	}
	return file, nil
}

// Pattern matches "<basename>.<digits>", which excludes the "<basename>.index" file.
func Pattern(basename string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(basename) + `\.[0-9]+$`)
}

// List returns the segments in directory, sorted by name.
func List(directory, basename string) ([]Segment, error) {
	pattern := Pattern(basename)
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, err
	}
	var result []Segment
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !pattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				// Purged by the server between ReadDir and Info.
				continue
			}
			return nil, err
		}
		result = append(result, NewFromInfo(filepath.Join(directory, entry.Name()), info))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result, nil
}

// Exists reports whether name is still present in directory.
func Exists(directory, name string) (bool, error) {
	_, err := os.Lstat(filepath.Join(directory, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
