// Copyright 2019 RetailNext, Inc.
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

package keystore

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"
)

const backupType = "binlog"

// KeyStore lays segments out as
// <prefix>/binlog/<host>/<YYYY>/<MM>[/<DD>]/<segment name>
// so a bucket listing is browsable and sorts chronologically.
type KeyStore struct {
	Bucket string
	Prefix string
	Daily  bool
}

func NewKeyStore(bucket, prefix string, daily bool) KeyStore {
	return KeyStore{
		Bucket: bucket,
		Prefix: strings.Trim(prefix, "/"),
		Daily:  daily,
	}
}

func (c *KeyStore) keyWithPrefix(key string) string {
	if c.Prefix == "" {
		return key
	}
	var buffer bytes.Buffer
	buffer.WriteString(c.Prefix)
	buffer.WriteString("/")
	buffer.WriteString(key)
	return buffer.String()
}

func checkHost(host string) {
	if host == "" || strings.ContainsRune(host, '/') {
		panic(fmt.Sprintf("invalid host %q", host))
	}
}

func (c *KeyStore) AbsoluteKeyPrefixForHost(host string) string {
	checkHost(host)
	return c.keyWithPrefix(backupType + "/" + host + "/")
}

// AbsoluteKeyForSegment places the segment under the UTC date of at.
func (c *KeyStore) AbsoluteKeyForSegment(host, name string, at time.Time) string {
	if name == "" || strings.ContainsRune(name, '/') {
		panic(fmt.Sprintf("invalid segment name %q", name))
	}
	at = at.UTC()
	var buffer bytes.Buffer
	buffer.WriteString(c.AbsoluteKeyPrefixForHost(host))
	buffer.WriteString(at.Format("2006/01/"))
	if c.Daily {
		buffer.WriteString(at.Format("02/"))
	}
	buffer.WriteString(name)
	return buffer.String()
}

// SegmentNameFromKey returns the segment name of a key under host's prefix.
func (c *KeyStore) SegmentNameFromKey(host, key string) (string, error) {
	hostPrefix := c.AbsoluteKeyPrefixForHost(host)
	if !strings.HasPrefix(key, hostPrefix) {
		return "", fmt.Errorf("key %q not under %q", key, hostPrefix)
	}
	rest := strings.TrimPrefix(key, hostPrefix)
	depth := strings.Count(rest, "/")
	if depth != 2 && depth != 3 {
		return "", fmt.Errorf("unexpected key layout %q", key)
	}
	return path.Base(rest), nil
}
