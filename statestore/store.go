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

// Package statestore persists the names of segments already copied off-host.
//
// The on-disk format is one name per line. Entries are only ever appended,
// except by Compact, which replaces the whole file atomically.
package statestore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/retailnext/writefile"
	"go.uber.org/zap"
)

type Store struct {
	path     string
	maxBytes int64

	names      map[string]struct{}
	appendFile *os.File
}

// Open loads the store at path, creating it empty if absent. A file larger
// than maxBytes is considered corrupt and is renamed aside.
func Open(path string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		path:     path,
		maxBytes: maxBytes,
		names:    make(map[string]struct{}),
	}
	if err := s.rotateIfImplausible(); err != nil {
		return nil, err
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	if err := s.openForAppend(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) rotateIfImplausible() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if s.maxBytes <= 0 || info.Size() <= s.maxBytes {
		return nil
	}
	aside := fmt.Sprintf("%s.corrupt.%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, aside); err != nil {
		return err
	}
	zap.S().Warnw("state_store_rotated", "path", s.path, "aside", aside, "size", info.Size(), "max_size", s.maxBytes)
	return nil
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		s.names[name] = struct{}{}
	}
	return scanner.Err()
}

func (s *Store) openForAppend() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	// A crash mid-append can leave a fragment without a newline. Terminate it
	// so the next name is not glued onto it; compaction drops the fragment.
	if needsNewline, err := endsWithoutNewline(s.path); err != nil {
		_ = f.Close()
		return err
	} else if needsNewline {
		if _, err := f.WriteString("\n"); err != nil {
			_ = f.Close()
			return err
		}
	}
	s.appendFile = f
	return nil
}

func endsWithoutNewline(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = f.Close()
	}()
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil && err != io.EOF {
		return false, err
	}
	return last[0] != '\n', nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Contains(name string) bool {
	_, ok := s.names[name]
	return ok
}

func (s *Store) Len() int {
	return len(s.names)
}

// Names returns the recorded names in sorted order.
func (s *Store) Names() []string {
	result := make([]string, 0, len(s.names))
	for name := range s.names {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Append records name durably. Names already present are not written again.
func (s *Store) Append(name string) error {
	if name == "" || strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("statestore: invalid name %q", name)
	}
	if s.Contains(name) {
		return nil
	}
	if _, err := s.appendFile.WriteString(name + "\n"); err != nil {
		return err
	}
	if err := s.appendFile.Sync(); err != nil {
		return err
	}
	s.names[name] = struct{}{}
	return nil
}

// KeepFunc decides whether a recorded name survives compaction.
type KeepFunc func(name string) (bool, error)

// Compact rewrites the store with only the names keep accepts. The new
// contents are written to a temporary file and renamed into place, so an
// interrupted compaction leaves the previous store intact.
func (s *Store) Compact(keep KeepFunc) (kept, dropped int, err error) {
	var survivors []string
	for _, name := range s.Names() {
		ok, keepErr := keep(name)
		if keepErr != nil {
			return 0, 0, keepErr
		}
		if ok {
			survivors = append(survivors, name)
		} else {
			dropped++
		}
	}
	kept = len(survivors)

	target := &writefile.Config{
		Directory:     filepath.Dir(s.path),
		DirectoryMode: 0o755,
		FileMode:      0o644,
	}
	writeErr := target.WriteFile(filepath.Base(s.path), func(file *os.File) error {
		w := bufio.NewWriter(file)
		for _, name := range survivors {
			if _, err := w.WriteString(name + "\n"); err != nil {
				return err
			}
		}
		return w.Flush()
	})
	if writeErr != nil {
		return 0, 0, writeErr
	}

	// The append handle still refers to the replaced inode.
	if closeErr := s.appendFile.Close(); closeErr != nil {
		zap.S().Warnw("state_store_close_error", "path", s.path, "err", closeErr)
	}
	s.names = make(map[string]struct{}, kept)
	for _, name := range survivors {
		s.names[name] = struct{}{}
	}
	if err := s.openForAppend(); err != nil {
		return kept, dropped, err
	}
	return kept, dropped, nil
}

func (s *Store) Close() error {
	if s == nil || s.appendFile == nil {
		return nil
	}
	err := s.appendFile.Close()
	s.appendFile = nil
	return err
}
