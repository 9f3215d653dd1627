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
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-test/deep"
	"github.com/retailnext/binlogbackup/bucket/config"
	"github.com/retailnext/binlogbackup/bucket/keystore"
	appconfig "github.com/retailnext/binlogbackup/config"
	"github.com/retailnext/binlogbackup/digest"
	"github.com/retailnext/binlogbackup/segment"
)

type fakeS3 struct {
	lock      sync.Mutex
	objects   map[string][]byte
	metadata  map[string]map[string]string
	parts     map[int32][]byte
	failPart  int32
	aborted   bool
	encrypted bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:   make(map[string][]byte),
		metadata:  make(map[string]map[string]string),
		parts:     make(map[int32][]byte),
		encrypted: true,
	}
}

func checkMD5(body []byte, contentMD5 *string) error {
	sum := md5.Sum(body)
	if base64.StdEncoding.EncodeToString(sum[:]) != aws.ToString(contentMD5) {
		return errors.New("BadDigest")
	}
	return nil
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if err := checkMD5(body, params.ContentMD5); err != nil {
		return nil, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.objects[aws.ToString(params.Key)] = body
	f.metadata[aws.ToString(params.Key)] = params.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	body, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(body)))}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	key := aws.ToString(params.Key)
	body, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata:      f.metadata[key],
	}, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.metadata[aws.ToString(params.Key)] = params.Metadata
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	partNumber := aws.ToInt32(params.PartNumber)
	if partNumber == f.failPart {
		return nil, fmt.Errorf("part %d rejected", partNumber)
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if err := checkMD5(body, params.ContentMD5); err != nil {
		return nil, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.parts[partNumber] = body
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("etag-%d", partNumber))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	var buf bytes.Buffer
	for i, part := range params.MultipartUpload.Parts {
		if aws.ToInt32(part.PartNumber) != int32(i+1) {
			return nil, errors.New("InvalidPartOrder")
		}
		buf.Write(f.parts[aws.ToInt32(part.PartNumber)])
	}
	f.objects[aws.ToString(params.Key)] = buf.Bytes()
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.aborted = true
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) GetBucketEncryption(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error) {
	output := &s3.GetBucketEncryptionOutput{
		ServerSideEncryptionConfiguration: &types.ServerSideEncryptionConfiguration{},
	}
	if f.encrypted {
		output.ServerSideEncryptionConfiguration.Rules = []types.ServerSideEncryptionRule{
			{ApplyServerSideEncryptionByDefault: &types.ServerSideEncryptionByDefault{SSEAlgorithm: types.ServerSideEncryptionAes256}},
		}
	}
	return output, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	var keys []string
	for key := range f.objects {
		if bytes.HasPrefix([]byte(key), []byte(aws.ToString(params.Prefix))) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	output := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, key := range keys {
		output.Contents = append(output.Contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(f.objects[key]))),
			LastModified: aws.Time(time.Unix(0, 0)),
		})
	}
	return output, nil
}

func newTestClient(f *fakeS3) *awsClient {
	cfg := appconfig.Default().Bucket
	cfg.Name = "evidence"
	return newClient(f, cfg, keystore.NewKeyStore("evidence", "", false))
}

func makeSegment(t *testing.T, size int) (segment.Segment, []byte) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "mysql-bin.000002")
	if err := os.WriteFile(path, data, 0o640); err != nil {
		t.Fatal(err)
	}
	s, err := segment.New(path)
	if err != nil {
		t.Fatal(err)
	}
	return s, data
}

func TestPutSegmentSinglePart(t *testing.T) {
	f := newFakeS3()
	c := newTestClient(f)
	s, data := makeSegment(t, 4096)
	d, err := digest.Compute(context.Background(), s, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	key := c.KeyStore().AbsoluteKeyForSegment("db01", s.Name(), s.ModTime())
	if err := c.PutSegment(context.Background(), key, s, d); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(f.objects[key], data) {
		t.Fatal("object contents mismatch")
	}
	if f.metadata[key][blake2bMetadataKey] != d.Blake2b() {
		t.Fatal("missing blake2b metadata")
	}
	size, err := c.ObjectSize(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if size != 4096 {
		t.Fatalf("unexpected size %d", size)
	}
}

func TestPutSegmentMultipart(t *testing.T) {
	f := newFakeS3()
	c := newTestClient(f)
	s, data := makeSegment(t, 10*1000+7)
	d, err := digest.Compute(context.Background(), s, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if d.Parts() != 11 {
		t.Fatalf("expected 11 parts, got %d", d.Parts())
	}
	if err := c.PutSegment(context.Background(), "k", s, d); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(f.objects["k"], data) {
		t.Fatal("object contents mismatch")
	}
	if f.aborted {
		t.Fatal("unexpected abort")
	}
}

func TestPutSegmentMultipartFailureAborts(t *testing.T) {
	f := newFakeS3()
	f.failPart = 3
	c := newTestClient(f)
	s, _ := makeSegment(t, 5000)
	d, err := digest.Compute(context.Background(), s, 1000)
	if err != nil {
		t.Fatal(err)
	}
	err = c.PutSegment(context.Background(), "k", s, d)
	var failures UploadPartFailures
	if !errors.As(err, &failures) {
		t.Fatalf("expected UploadPartFailures, got %v", err)
	}
	if _, ok := failures[3]; !ok {
		t.Fatalf("part 3 not reported: %v", failures)
	}
	if !f.aborted {
		t.Fatal("expected abort")
	}
	if _, ok := f.objects["k"]; ok {
		t.Fatal("object should not exist")
	}
}

func TestObjectSizeNotFound(t *testing.T) {
	c := newTestClient(newFakeS3())
	if _, err := c.ObjectSize(context.Background(), "missing"); err != config.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	f := newFakeS3()
	c := newTestClient(f)
	if err := c.Validate(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.encrypted = false
	if err := c.Validate(context.Background()); !errors.Is(err, errNoDefaultEncryption) {
		t.Fatalf("expected errNoDefaultEncryption, got %v", err)
	}
}

func TestListObjects(t *testing.T) {
	f := newFakeS3()
	f.objects["binlog/db01/2026/10/mysql-bin.000001"] = make([]byte, 3)
	f.objects["binlog/db01/2026/10/mysql-bin.000002"] = make([]byte, 5)
	f.objects["binlog/db02/2026/10/mysql-bin.000001"] = make([]byte, 7)
	c := newTestClient(f)
	objects, err := c.ListObjects(context.Background(), c.KeyStore().AbsoluteKeyPrefixForHost("db01"))
	if err != nil {
		t.Fatal(err)
	}
	expected := []config.ObjectInfo{
		{Key: "binlog/db01/2026/10/mysql-bin.000001", Size: 3, LastModified: time.Unix(0, 0)},
		{Key: "binlog/db01/2026/10/mysql-bin.000002", Size: 5, LastModified: time.Unix(0, 0)},
	}
	if diff := deep.Equal(objects, expected); diff != nil {
		t.Fatal(diff)
	}
}

func TestIsNoSuchKey(t *testing.T) {
	if !IsNoSuchKey(&types.NoSuchKey{}) || !IsNoSuchKey(fmt.Errorf("wrapped: %w", &types.NotFound{})) {
		t.Fatal("expected not found")
	}
	if IsNoSuchKey(errors.New("boom")) || IsNoSuchKey(nil) {
		t.Fatal("unexpected not found")
	}
}

func TestGetSegment(t *testing.T) {
	f := newFakeS3()
	c := newTestClient(f)
	s, data := makeSegment(t, 3000)
	d, err := digest.Compute(context.Background(), s, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.PutSegment(context.Background(), "k", s, d); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	n, err := c.GetSegment(context.Background(), "k", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3000 || !bytes.Equal(buf.Bytes(), data) {
		t.Fatal("downloaded contents mismatch")
	}

	f.objects["k"][0] ^= 0xff
	buf.Reset()
	if _, err := c.GetSegment(context.Background(), "k", &buf); !errors.Is(err, config.ErrDigestMismatch) {
		t.Fatalf("expected ErrDigestMismatch, got %v", err)
	}

	if _, err := c.GetSegment(context.Background(), "missing", &buf); err != config.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
