// Copyright 2020 RetailNext, Inc.
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
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/retailnext/binlogbackup/bucket/config"
	"go.uber.org/zap"
)

func (c *awsClient) ListObjects(ctx context.Context, prefix string) ([]config.ObjectInfo, error) {
	attempts := 0
	for {
		result, err := c.listObjects(ctx, prefix)
		if err == nil {
			return result, nil
		}
		attempts++
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if attempts > config.ListRetriesLimit {
			return nil, err
		}
		zap.S().Warnw("s3_list_objects_error", "prefix", prefix, "err", err, "attempts", attempts)
		time.Sleep(time.Duration(attempts) * config.RetrySleepPerAttempt)
	}
}

func (c *awsClient) listObjects(ctx context.Context, prefix string) ([]config.ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.keyStore.Bucket),
		Prefix: aws.String(prefix),
	}
	var result []config.ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(c.s3Svc, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			result = append(result, config.ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return result, nil
}
