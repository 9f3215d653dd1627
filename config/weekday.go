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

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Weekday accepts either an English day name or 0-6 (Sunday=0).
type Weekday time.Weekday

func (w Weekday) Weekday() time.Weekday {
	return time.Weekday(w)
}

func (w Weekday) String() string {
	return time.Weekday(w).String()
}

func (w *Weekday) Parse(value string) error {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		if n < 0 || n > 6 {
			return fmt.Errorf("weekday out of range: %d", n)
		}
		*w = Weekday(n)
		return nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := d.String()
		if strings.EqualFold(value, name) || strings.EqualFold(value, name[:3]) {
			*w = Weekday(d)
			return nil
		}
	}
	return fmt.Errorf("unknown weekday %q", value)
}

func (w *Weekday) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: weekday must be a scalar", node.Line)
	}
	return w.Parse(node.Value)
}

func (w Weekday) MarshalYAML() (interface{}, error) {
	return w.String(), nil
}
