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

package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-test/deep"
)

func writeFile(t *testing.T, dir, name string, size int) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o640); err != nil {
		t.Fatal(err)
	}
}

func TestPattern(t *testing.T) {
	cases := map[string]bool{
		"mysql-bin.000001":  true,
		"mysql-bin.1234567": true,
		"mysql-bin.index":   false,
		"mysql-bin.000001~": false,
		"mysql-binX000001":  false,
		"other-bin.000001":  false,
		"mysql-bin.":        false,
	}
	pattern := Pattern("mysql-bin")
	for input, expected := range cases {
		if pattern.MatchString(input) != expected {
			t.Fatalf("input=%q expected=%v", input, expected)
		}
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "mysql-bin.000003", 10)
	writeFile(t, dir, "mysql-bin.000001", 30)
	writeFile(t, dir, "mysql-bin.000002", 20)
	writeFile(t, dir, "mysql-bin.index", 5)
	writeFile(t, dir, "ibdata1", 5)
	if err := os.Mkdir(filepath.Join(dir, "mysql-bin.000004"), 0o755); err != nil {
		t.Fatal(err)
	}

	segments, err := List(dir, "mysql-bin")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	var sizes []int64
	for _, s := range segments {
		names = append(names, s.Name())
		sizes = append(sizes, s.Len())
	}
	if diff := deep.Equal(names, []string{"mysql-bin.000001", "mysql-bin.000002", "mysql-bin.000003"}); diff != nil {
		t.Fatal(diff)
	}
	if diff := deep.Equal(sizes, []int64{30, 20, 10}); diff != nil {
		t.Fatal(diff)
	}
}

func TestOpenDetectsModification(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "mysql-bin.000001", 100)
	s, err := New(filepath.Join(dir, "mysql-bin.000001"))
	if err != nil {
		t.Fatal(err)
	}

	f, err := s.Open()
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	writeFile(t, dir, "mysql-bin.000001", 200)
	if _, err := s.Open(); !IsFingerprintMismatch(err) {
		t.Fatalf("expected fingerprint mismatch, got %v", err)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "mysql-bin.000001", 1)
	if ok, err := Exists(dir, "mysql-bin.000001"); err != nil || !ok {
		t.Fatalf("expected exists ok=%v err=%v", ok, err)
	}
	if ok, err := Exists(dir, "mysql-bin.000002"); err != nil || ok {
		t.Fatalf("expected absent ok=%v err=%v", ok, err)
	}
}
