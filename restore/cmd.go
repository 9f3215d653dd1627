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

package restore

import (
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/retailnext/binlogbackup/config"
)

var (
	Cmd = kingpin.Command("restore", "")

	SegmentsCmd = Cmd.Command("segments", "Download binary log segments for point-in-time recovery.")

	segmentsCmdTarget    = SegmentsCmd.Flag("target", "Directory to download segments into.").Required().String()
	segmentsCmdHost      = SegmentsCmd.Flag("from-host", "Restore segments uploaded by this host. Defaults to this host.").String()
	segmentsCmdFrom      = SegmentsCmd.Flag("from", "First segment name to restore.").String()
	segmentsCmdTo        = SegmentsCmd.Flag("to", "Last segment name to restore.").String()
	segmentsCmdNotBefore = SegmentsCmd.Flag("not-before", "Ignore segments stored before this time (unix seconds)").Int64()
	segmentsCmdNotAfter  = SegmentsCmd.Flag("not-after", "Ignore segments stored after this time (unix seconds)").Int64()
	segmentsCmdDryRun    = SegmentsCmd.Flag("dry-run", "Don't actually download segments").Bool()
	segmentsCmdParallel  = SegmentsCmd.Flag("parallel", "Number of concurrent downloads.").Default("4").Int()
)

func unixOrZero(seconds int64) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0)
}

// OptionsFromFlags builds restore options from the command line.
func OptionsFromFlags(cfg config.Config) Options {
	host := cfg.Hostname
	if *segmentsCmdHost != "" {
		host = *segmentsCmdHost
	}
	return Options{
		Host:   host,
		Target: *segmentsCmdTarget,
		Selection: Selection{
			From:      *segmentsCmdFrom,
			To:        *segmentsCmdTo,
			NotBefore: unixOrZero(*segmentsCmdNotBefore),
			NotAfter:  unixOrZero(*segmentsCmdNotAfter),
		},
		DryRun:   *segmentsCmdDryRun,
		Parallel: *segmentsCmdParallel,
	}
}
