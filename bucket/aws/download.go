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

package aws

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/retailnext/binlogbackup/bucket/config"
	"golang.org/x/crypto/blake2b"
)

func (c *awsClient) GetSegment(ctx context.Context, key string, w io.Writer) (int64, error) {
	output, err := c.s3Svc.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.keyStore.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if IsNoSuchKey(err) {
			return 0, config.ErrNotFound
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, err
	}
	defer output.Body.Close()

	hash, err := blake2b.New512(nil)
	if err != nil {
		panic(err)
	}
	n, err := io.Copy(io.MultiWriter(w, hash), output.Body)
	if err != nil {
		return n, err
	}
	if expected := aws.ToInt64(output.ContentLength); output.ContentLength != nil && n != expected {
		return n, fmt.Errorf("%s: read %d of %d bytes", key, n, expected)
	}
	if recorded := output.Metadata[blake2bMetadataKey]; recorded != "" {
		if hex.EncodeToString(hash.Sum(nil)) != recorded {
			return n, fmt.Errorf("%s: %w", key, config.ErrDigestMismatch)
		}
	}
	return n, nil
}
