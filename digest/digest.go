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

// Package digest computes the checksums sent alongside a segment upload.
//
// Each part gets an MD5 for the Content-MD5 header so S3 rejects corrupted
// parts, and the whole file gets a BLAKE2b-512 digest stored as object
// metadata for verification at restore time.
package digest

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/retailnext/binlogbackup/segment"
	"golang.org/x/crypto/blake2b"
)

const readBufferSize = 1024 * 1024

type ForUpload struct {
	partSize    int64
	totalLength int64
	md5Parts    [][md5.Size]byte
	blake2b     [blake2b.Size]byte
}

func (d *ForUpload) TotalLength() int64 {
	return d.totalLength
}

// Parts is at least one, even for an empty file.
func (d *ForUpload) Parts() int64 {
	return int64(len(d.md5Parts))
}

func (d *ForUpload) checkPart(partNumber int64) {
	if partNumber < 1 || partNumber > d.Parts() {
		panic(fmt.Sprintf("digest: invalid part number %d", partNumber))
	}
}

func (d *ForUpload) PartOffset(partNumber int64) int64 {
	d.checkPart(partNumber)
	return d.partSize * (partNumber - 1)
}

func (d *ForUpload) PartLength(partNumber int64) int64 {
	d.checkPart(partNumber)
	if partNumber < d.Parts() {
		return d.partSize
	}
	return d.totalLength - d.partSize*(d.Parts()-1)
}

func (d *ForUpload) PartContentMD5(partNumber int64) string {
	d.checkPart(partNumber)
	sum := d.md5Parts[partNumber-1]
	return base64.StdEncoding.EncodeToString(sum[:])
}

func (d *ForUpload) Blake2b() string {
	return hex.EncodeToString(d.blake2b[:])
}

// Compute reads the segment once, producing digests for parts of partSize bytes.
func Compute(ctx context.Context, s segment.Segment, partSize int64) (*ForUpload, error) {
	if partSize <= 0 {
		panic("digest: partSize must be positive")
	}
	f, err := s.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			panic(closeErr)
		}
	}()

	result, err := compute(ctx, f, partSize)
	if err != nil {
		return nil, err
	}
	if result.totalLength != s.Len() {
		return nil, fmt.Errorf("digest: read %d bytes from %s, expected %d", result.totalLength, s.Name(), s.Len())
	}
	return result, nil
}

func compute(ctx context.Context, r io.Reader, partSize int64) (*ForUpload, error) {
	whole, err := blake2b.New512(nil)
	if err != nil {
		return nil, err
	}
	result := &ForUpload{
		partSize: partSize,
	}
	buf := make([]byte, readBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		part := md5.New()
		n, err := io.CopyBuffer(io.MultiWriter(part, whole), io.LimitReader(r, partSize), buf)
		if err != nil {
			return nil, err
		}
		if n == 0 && len(result.md5Parts) > 0 {
			break
		}
		var sum [md5.Size]byte
		copy(sum[:], part.Sum(nil))
		result.md5Parts = append(result.md5Parts, sum)
		result.totalLength += n
		if n < partSize {
			break
		}
	}
	copy(result.blake2b[:], whole.Sum(nil))
	return result, nil
}
