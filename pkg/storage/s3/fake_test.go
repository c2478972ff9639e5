package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeVersion struct {
	id           string
	data         []byte
	deleteMarker bool
	modified     time.Time
}

// fakeS3 is an in-memory single-bucket S3. It paginates like the real
// service and optionally keeps versions.
type fakeS3 struct {
	mu sync.Mutex

	bucket     string
	region     string
	arn        string // reported by HeadBucket when set
	versioning bool
	objects    map[string][]fakeVersion // oldest first
	nextID     int

	// failures makes the named operation return the given error.
	failures map[string]error
	calls    map[string]int
}

var _ API = (*fakeS3)(nil)

func newFakeS3(bucket, region string) *fakeS3 {
	return &fakeS3{
		bucket:   bucket,
		region:   region,
		objects:  make(map[string][]fakeVersion),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeS3) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

func (f *fakeS3) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// enter records the call and returns the injected failure, if any. Callers
// hold f.mu.
func (f *fakeS3) enter(op string, bucket *string) error {
	f.calls[op]++
	if err := f.failures[op]; err != nil {
		return err
	}
	if aws.ToString(bucket) != f.bucket {
		return &types.NoSuchBucket{Message: aws.String("The specified bucket does not exist")}
	}
	return nil
}

func (f *fakeS3) current(key string) (fakeVersion, bool) {
	vs := f.objects[key]
	if len(vs) == 0 || vs[len(vs)-1].deleteMarker {
		return fakeVersion{}, false
	}
	return vs[len(vs)-1], true
}

func (f *fakeS3) put(key string, data []byte) fakeVersion {
	v := fakeVersion{id: "null", data: data, modified: time.Now().UTC()}
	if !f.versioning {
		f.objects[key] = []fakeVersion{v}
		return v
	}
	f.nextID++
	v.id = "v" + strconv.Itoa(f.nextID)
	f.objects[key] = append(f.objects[key], v)
	return v
}

func notFound() error {
	return &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["HeadBucket"]++
	if err := f.failures["HeadBucket"]; err != nil {
		return nil, err
	}
	if aws.ToString(in.Bucket) != f.bucket {
		return nil, notFound()
	}
	out := &s3.HeadBucketOutput{BucketRegion: aws.String(f.region)}
	if f.arn != "" {
		out.BucketArn = aws.String(f.arn)
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetObject", in.Bucket); err != nil {
		return nil, err
	}
	v, ok := f.current(aws.ToString(in.Key))
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(strings.NewReader(string(v.data))),
		ContentLength: aws.Int64(int64(len(v.data))),
		VersionId:     aws.String(v.id),
	}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutObject", in.Bucket); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if in.ContentLength != nil && *in.ContentLength != int64(len(data)) {
		return nil, &smithy.GenericAPIError{Code: "IncompleteBody", Message: "content length mismatch"}
	}
	v := f.put(aws.ToString(in.Key), data)
	return &s3.PutObjectOutput{VersionId: aws.String(v.id)}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("HeadObject", in.Bucket); err != nil {
		return nil, err
	}
	v, ok := f.current(aws.ToString(in.Key))
	if !ok {
		return nil, notFound()
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(v.data))),
		ContentType:   aws.String("binary/octet-stream"),
		ETag:          aws.String(fmt.Sprintf("%q", fmt.Sprintf("etag-%d", len(v.data)))),
		LastModified:  aws.Time(v.modified),
		VersionId:     aws.String(v.id),
		StorageClass:  types.StorageClassStandard,
		Metadata:      map[string]string{"owner": "archive"},
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteObject", in.Bucket); err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	if !f.versioning {
		delete(f.objects, key)
		return &s3.DeleteObjectOutput{}, nil
	}
	f.nextID++
	f.objects[key] = append(f.objects[key], fakeVersion{id: "dm" + strconv.Itoa(f.nextID), deleteMarker: true})
	return &s3.DeleteObjectOutput{DeleteMarker: aws.Bool(true)}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CopyObject", in.Bucket); err != nil {
		return nil, err
	}
	src := aws.ToString(in.CopySource)
	if !strings.HasPrefix(src, f.bucket+"/") {
		return nil, &types.NoSuchBucket{}
	}
	key, err := url.PathUnescape(strings.TrimPrefix(src, f.bucket+"/"))
	if err != nil {
		return nil, &smithy.GenericAPIError{Code: "InvalidArgument", Message: err.Error()}
	}
	v, ok := f.current(key)
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	f.put(aws.ToString(in.Key), append([]byte(nil), v.data...))
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListObjectsV2", in.Bucket); err != nil {
		return nil, err
	}

	var keys []string
	for k := range f.objects {
		if _, ok := f.current(k); ok && strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		start = sort.SearchStrings(keys, tok)
		if start < len(keys) && keys[start] == tok {
			start++
		}
	}
	limit := int(aws.ToInt32(in.MaxKeys))
	if limit <= 0 {
		limit = 1000
	}
	end := min(start+limit, len(keys))

	out := &s3.ListObjectsV2Output{
		KeyCount:    aws.Int32(int32(end - start)),
		IsTruncated: aws.Bool(end < len(keys)),
	}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end-1])
	}
	return out, nil
}

type versionEntry struct {
	key string
	v   fakeVersion
}

func (f *fakeS3) ListObjectVersions(_ context.Context, in *s3.ListObjectVersionsInput, _ ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListObjectVersions", in.Bucket); err != nil {
		return nil, err
	}

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	// Keys ascending, versions newest first, as S3 returns them.
	var entries []versionEntry
	for _, k := range keys {
		vs := f.objects[k]
		for i := len(vs) - 1; i >= 0; i-- {
			entries = append(entries, versionEntry{key: k, v: vs[i]})
		}
	}

	start := 0
	if km := aws.ToString(in.KeyMarker); km != "" {
		vm := aws.ToString(in.VersionIdMarker)
		for i, e := range entries {
			if e.key == km && e.v.id == vm {
				start = i + 1
				break
			}
		}
	}
	limit := int(aws.ToInt32(in.MaxKeys))
	if limit <= 0 {
		limit = 1000
	}
	end := min(start+limit, len(entries))

	out := &s3.ListObjectVersionsOutput{IsTruncated: aws.Bool(end < len(entries))}
	for _, e := range entries[start:end] {
		if e.v.deleteMarker {
			out.DeleteMarkers = append(out.DeleteMarkers, types.DeleteMarkerEntry{Key: aws.String(e.key), VersionId: aws.String(e.v.id)})
			continue
		}
		out.Versions = append(out.Versions, types.ObjectVersion{Key: aws.String(e.key), VersionId: aws.String(e.v.id)})
	}
	if end < len(entries) {
		last := entries[end-1]
		out.NextKeyMarker = aws.String(last.key)
		out.NextVersionIdMarker = aws.String(last.v.id)
	}
	return out, nil
}
