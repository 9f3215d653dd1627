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
	"io"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/retailnext/binlogbackup/bucket/config"
	"github.com/retailnext/binlogbackup/digest"
	"github.com/retailnext/binlogbackup/segment"
	"go.uber.org/zap"
)

const blake2bMetadataKey = "blake2b"

type safeUploader struct {
	s3Svc                S3API
	bucket               string
	serverSideEncryption types.ServerSideEncryption
	storageClass         types.StorageClass
}

func (u *safeUploader) UploadFile(ctx context.Context, key string, s segment.Segment, digests *digest.ForUpload) error {
	upl := fileUploader{
		s3Svc: u.s3Svc,

		bucket:               u.bucket,
		key:                  key,
		serverSideEncryption: u.serverSideEncryption,
		storageClass:         u.storageClass,

		segment: s,
		digests: digests,

		errors: make(map[int32]error),
		etags:  make(map[int32]string),
	}
	return upl.Upload(ctx)
}

type fileUploader struct {
	s3Svc S3API

	bucket               string
	key                  string
	serverSideEncryption types.ServerSideEncryption
	storageClass         types.StorageClass

	segment segment.Segment
	osFile  *os.File
	digests *digest.ForUpload

	ctx       context.Context
	ctxCancel context.CancelFunc

	wg      sync.WaitGroup
	limiter chan struct{}

	lock     sync.Mutex
	errors   map[int32]error
	etags    map[int32]string
	uploadId string
}

func (u *fileUploader) metadata() map[string]string {
	return map[string]string{
		blake2bMetadataKey: u.digests.Blake2b(),
	}
}

func (u *fileUploader) Upload(ctx context.Context) error {
	if osFile, err := u.segment.Open(); err != nil {
		return err
	} else {
		u.osFile = osFile
	}
	defer func() {
		if closeErr := u.osFile.Close(); closeErr != nil {
			panic(closeErr)
		}
	}()

	if u.digests.Parts() == 1 {
		return u.uploadSinglePart(ctx)
	}

	u.ctx, u.ctxCancel = context.WithCancel(ctx)
	defer u.ctxCancel()

	createMultipartUploadInput := &s3.CreateMultipartUploadInput{
		Bucket:               aws.String(u.bucket),
		Key:                  aws.String(u.key),
		ServerSideEncryption: u.serverSideEncryption,
		StorageClass:         u.storageClass,
		Metadata:             u.metadata(),
	}
	createMultipartUploadOutput, err := u.s3Svc.CreateMultipartUpload(u.ctx, createMultipartUploadInput)
	if err != nil {
		return err
	}
	u.uploadId = aws.ToString(createMultipartUploadOutput.UploadId)
	defer func() {
		if err != nil {
			u.abort()
		}
	}()

	u.limiter = make(chan struct{}, config.PartUploadLimit)
	doneCh := u.ctx.Done()
	var partNumber int32
PARTS:
	for partNumber = 1; int64(partNumber) <= u.digests.Parts(); partNumber++ {
		select {
		case <-doneCh:
			break PARTS
		case u.limiter <- struct{}{}:
			u.wg.Add(1)
			go u.uploadPart(partNumber)
		}
	}
	u.wg.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
		return err
	}
	err = u.tryToComplete()
	return err
}

func (u *fileUploader) tryToComplete() error {
	u.lock.Lock()
	defer u.lock.Unlock()

	var parts []types.CompletedPart
	var partNumber int32
	for partNumber = 1; int64(partNumber) <= u.digests.Parts(); partNumber++ {
		etag, etagOk := u.etags[partNumber]
		if !etagOk {
			if _, alreadyError := u.errors[partNumber]; !alreadyError {
				u.errors[partNumber] = fmt.Errorf("etag missing")
			}
			continue
		}
		parts = append(parts, types.CompletedPart{
			PartNumber: aws.Int32(partNumber),
			ETag:       aws.String(etag),
		})
	}

	if len(u.errors) > 0 {
		return UploadPartFailures(u.errors)
	}

	completeMultipartUploadInput := &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(u.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.uploadId),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	}
	_, err := u.s3Svc.CompleteMultipartUpload(u.ctx, completeMultipartUploadInput)
	return err
}

func (u *fileUploader) abort() {
	lgr := zap.S()
	input := &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.uploadId),
	}
	// The upload context may already be cancelled.
	_, err := u.s3Svc.AbortMultipartUpload(context.Background(), input)
	if err != nil {
		lgr.Errorw("abort_multipart_upload_error", "key", u.key, "err", err)
	} else {
		lgr.Infow("abort_multipart_upload_ok", "key", u.key)
	}
}

func (u *fileUploader) uploadPart(partNumber int32) {
	var err error

	defer func() {
		if err != nil {
			u.lock.Lock()
			u.errors[partNumber] = err
			u.ctxCancel()
			u.lock.Unlock()
		}
		<-u.limiter
		u.wg.Done()
	}()

	offset := u.digests.PartOffset(int64(partNumber))
	length := u.digests.PartLength(int64(partNumber))
	reader := io.NewSectionReader(u.osFile, offset, length)

	uploadPartInput := &s3.UploadPartInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(u.key),
		UploadId:      aws.String(u.uploadId),
		PartNumber:    aws.Int32(partNumber),
		ContentLength: aws.Int64(length),
		ContentMD5:    aws.String(u.digests.PartContentMD5(int64(partNumber))),
		Body:          reader,
	}
	var uploadPartOutput *s3.UploadPartOutput
	uploadPartOutput, err = u.s3Svc.UploadPart(u.ctx, uploadPartInput)
	if err != nil {
		return
	}

	u.lock.Lock()
	u.etags[partNumber] = aws.ToString(uploadPartOutput.ETag)
	u.lock.Unlock()
}

func (u *fileUploader) uploadSinglePart(ctx context.Context) error {
	putObjectInput := &s3.PutObjectInput{
		Bucket:               aws.String(u.bucket),
		Key:                  aws.String(u.key),
		ContentLength:        aws.Int64(u.digests.PartLength(1)),
		ContentMD5:           aws.String(u.digests.PartContentMD5(1)),
		ServerSideEncryption: u.serverSideEncryption,
		StorageClass:         u.storageClass,
		Metadata:             u.metadata(),
		Body:                 u.osFile,
	}
	_, err := u.s3Svc.PutObject(ctx, putObjectInput)
	return err
}

type UploadPartFailures map[int32]error

func (e UploadPartFailures) Error() string {
	return fmt.Sprintf("%d parts failed to upload", len(e))
}
