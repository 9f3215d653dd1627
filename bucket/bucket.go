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

package bucket

import (
	"context"
	"io"

	"github.com/retailnext/binlogbackup/bucket/aws"
	"github.com/retailnext/binlogbackup/bucket/config"
	"github.com/retailnext/binlogbackup/bucket/keystore"
	appconfig "github.com/retailnext/binlogbackup/config"
	"github.com/retailnext/binlogbackup/digest"
	"github.com/retailnext/binlogbackup/segment"
)

type Client interface {
	// PutSegment uploads the segment to key. It does not verify the result.
	PutSegment(ctx context.Context, key string, s segment.Segment, digests *digest.ForUpload) error
	// ObjectSize returns config.ErrNotFound when nothing is stored at key.
	ObjectSize(ctx context.Context, key string) (int64, error)
	ListObjects(ctx context.Context, prefix string) ([]config.ObjectInfo, error)
	// GetSegment copies the object at key to w, checking its length and, when
	// recorded, its BLAKE2b digest.
	GetSegment(ctx context.Context, key string, w io.Writer) (int64, error)
	// Validate checks the bucket is reachable and encrypts by default.
	Validate(ctx context.Context) error
	KeyStore() *keystore.KeyStore
}

func Open(ctx context.Context, cfg appconfig.BucketConfig) (Client, error) {
	keyStore := keystore.NewKeyStore(cfg.Name, cfg.KeyPrefix, cfg.KeyDaily)
	c, err := aws.NewAWSClient(ctx, cfg, keyStore)
	if err != nil {
		return nil, err
	}
	return c, nil
}
