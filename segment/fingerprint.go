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
	"syscall"
	"time"
)

type fingerprint struct {
	dev   uint64
	inode uint64
	size  int64
	mtime time.Time
}

func (fp *fingerprint) fromInfo(info os.FileInfo) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		panic("segment: unsupported FileInfo.Sys()")
	}
	fp.dev = uint64(stat.Dev)
	fp.inode = stat.Ino
	fp.size = info.Size()
	fp.mtime = info.ModTime()
}
