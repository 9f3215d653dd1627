// Copyright 2023 RetailNext, Inc.
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
	"github.com/alecthomas/kingpin/v2"
	"github.com/retailnext/binlogbackup/config"
)

var (
	SyncCmd    = kingpin.Command("sync", "Upload completed binary log segments once.")
	CompactCmd = kingpin.Command("compact", "Drop state store entries whose segment is gone from disk.")
	RunCmd     = kingpin.Command("run", "Sync and compact on a schedule. (Foreground Daemon)")
	StatusCmd  = kingpin.Command("status", "Show recent runs and the state store size.")

	StatusRuns = StatusCmd.Flag("runs", "Number of recent runs to show.").Default("10").Int()

	overrideHostname = kingpin.Flag("hostname", "Override hostname when storing backups.").String()
	overrideBucket   = kingpin.Flag("bucket", "Override the bucket name.").String()
	noRotate         = kingpin.Flag("no-rotate", "Never force a binary log rotation.").Bool()
)

// ApplyFlags overlays command line overrides on cfg.
func ApplyFlags(cfg *config.Config) {
	if *overrideHostname != "" {
		cfg.Hostname = *overrideHostname
	}
	if *overrideBucket != "" {
		cfg.Bucket.Name = *overrideBucket
	}
	if *noRotate {
		cfg.MariaDB.RotateAfter = 0
	}
}
