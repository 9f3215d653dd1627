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
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/retailnext/binlogbackup/bucket/keystore"
	appconfig "github.com/retailnext/binlogbackup/config"
)

// S3API is the subset of *s3.Client used here.
type S3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	GetBucketEncryption(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error)
}

type awsClient struct {
	s3Svc                S3API
	uploader             *safeUploader
	keyStore             keystore.KeyStore
	serverSideEncryption types.ServerSideEncryption
}

func NewAWSClient(ctx context.Context, cfg appconfig.BucketConfig, keyStore keystore.KeyStore) (*awsClient, error) {
	awsConf, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		// Parts carry Content-MD5; skip the SDK's additional trailing checksums.
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newClient(s3.NewFromConfig(awsConf), cfg, keyStore), nil
}

func newClient(s3Svc S3API, cfg appconfig.BucketConfig, keyStore keystore.KeyStore) *awsClient {
	return &awsClient{
		s3Svc: s3Svc,
		uploader: &safeUploader{
			s3Svc:                s3Svc,
			bucket:               keyStore.Bucket,
			serverSideEncryption: types.ServerSideEncryptionAes256,
			storageClass:         types.StorageClass(cfg.StorageClass),
		},
		keyStore:             keyStore,
		serverSideEncryption: types.ServerSideEncryptionAes256,
	}
}

func (c *awsClient) KeyStore() *keystore.KeyStore {
	return &c.keyStore
}

var errNoDefaultEncryption = errors.New("bucket not configured with a default sse algorithm")

func (c *awsClient) Validate(ctx context.Context) error {
	input := &s3.GetBucketEncryptionInput{
		Bucket: aws.String(c.keyStore.Bucket),
	}
	output, err := c.s3Svc.GetBucketEncryption(ctx, input)
	if err != nil {
		return fmt.Errorf("validate bucket encryption for %s: %w", c.keyStore.Bucket, err)
	}
	if output.ServerSideEncryptionConfiguration != nil {
		for _, rule := range output.ServerSideEncryptionConfiguration.Rules {
			if rule.ApplyServerSideEncryptionByDefault != nil && rule.ApplyServerSideEncryptionByDefault.SSEAlgorithm != "" {
				return nil
			}
		}
	}
	return fmt.Errorf("%s: %w", c.keyStore.Bucket, errNoDefaultEncryption)
}
