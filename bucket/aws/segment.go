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

package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/retailnext/binlogbackup/bucket/config"
	"github.com/retailnext/binlogbackup/digest"
	"github.com/retailnext/binlogbackup/metrics"
	"github.com/retailnext/binlogbackup/segment"
	"go.uber.org/zap"
)

func (c *awsClient) PutSegment(ctx context.Context, key string, s segment.Segment, digests *digest.ForUpload) error {
	if digests.TotalLength() != s.Len() {
		panic(fmt.Sprintf("digest length %d does not match segment length %d", digests.TotalLength(), s.Len()))
	}
	if err := c.uploader.UploadFile(ctx, key, s, digests); err != nil {
		metrics.Bucket.UploadErrors.Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	metrics.Bucket.UploadedFiles.Inc()
	metrics.Bucket.UploadedBytes.Add(float64(s.Len()))
	return nil
}

func (c *awsClient) ObjectSize(ctx context.Context, key string) (int64, error) {
	headObjectInput := &s3.HeadObjectInput{
		Bucket: aws.String(c.keyStore.Bucket),
		Key:    aws.String(key),
	}
	headObjectOutput, err := c.s3Svc.HeadObject(ctx, headObjectInput)
	if err != nil {
		if IsNoSuchKey(err) {
			return 0, config.ErrNotFound
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, err
	}
	if aws.ToBool(headObjectOutput.DeleteMarker) {
		zap.S().Infow("object_size_saw_delete_marker", "key", key)
		return 0, config.ErrNotFound
	}
	return aws.ToInt64(headObjectOutput.ContentLength), nil
}
