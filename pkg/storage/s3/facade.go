package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sgl-project/fallible/pkg/logging"
	"github.com/sgl-project/fallible/pkg/storage"
)

// Facade implements storage.Facade for one S3 bucket.
type Facade struct {
	client   API
	bucket   string
	pageSize int32
	metadata storage.StoreMetadata
	logger   logging.Interface
}

var (
	_ storage.Facade          = (*Facade)(nil)
	_ storage.ExistenceProber = (*Facade)(nil)
)

type options struct {
	client API
}

// Option customizes facade construction.
type Option func(*options)

// WithClient uses c instead of building an *s3.Client from the config.
func WithClient(c API) Option {
	return func(o *options) {
		o.client = c
	}
}

// New binds a facade to the bucket named by cfg.Name. The bucket must
// exist and be reachable with the resolved credentials: New issues a
// HeadBucket and returns a *storage.ConstructionError if it fails.
func New(ctx context.Context, cfg storage.Config, logger logging.Interface, opts ...Option) (*Facade, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Provider == "" {
		cfg.Provider = storage.ProviderS3
	}
	if cfg.Provider != storage.ProviderS3 {
		return nil, fmt.Errorf("%w: expected provider %s, got %s", storage.ErrInvalidConfig, storage.ProviderS3, cfg.Provider)
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = storage.DefaultPageSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	client := o.client
	if client == nil {
		c, err := newClient(ctx, cfg, logger)
		if err != nil {
			return nil, &storage.ConstructionError{Provider: storage.ProviderS3, Store: cfg.Name, Err: err}
		}
		client = c
	}

	out, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Name)})
	if err != nil {
		return nil, &storage.ConstructionError{Provider: storage.ProviderS3, Store: cfg.Name, Err: classifyBucket(err)}
	}

	region := aws.ToString(out.BucketRegion)
	if region == "" {
		region = cfg.Region
	}
	locator := aws.ToString(out.BucketArn)
	if locator == "" {
		locator = bucketARN(region, cfg.Name)
	}
	md, err := storage.NewStoreMetadata(storage.ObjectStoreID{Locator: locator}, cfg.Name, cfg.Description)
	if err != nil {
		return nil, &storage.ConstructionError{Provider: storage.ProviderS3, Store: cfg.Name, Err: err}
	}

	logger.WithField("bucket", cfg.Name).
		WithField("region", region).
		WithField("locator", md.Identity.String()).
		Info("S3 storage facade initialized")

	return &Facade{
		client:   client,
		bucket:   cfg.Name,
		pageSize: cfg.PageSize,
		metadata: md,
		logger:   logger.WithField("bucket", cfg.Name),
	}, nil
}

// Read fetches the whole object and applies decrypt once.
func (f *Facade) Read(ctx context.Context, path string, decrypt storage.TransformFunc) ([]byte, error) {
	f.logger.WithField("key", path).Debug("Reading object")

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, wrapError("read", path, err)
	}
	defer func() { _ = out.Body.Close() }()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, wrapError("read", path, err)
	}
	return storage.ApplyDecrypt(decrypt, path, raw)
}

// Write uploads data in a single PutObject.
func (f *Facade) Write(ctx context.Context, path string, data []byte, encrypt storage.TransformFunc) error {
	payload, err := storage.ApplyEncrypt(encrypt, path, data)
	if err != nil {
		return err
	}

	f.logger.WithField("key", path).WithField("size", len(payload)).Debug("Writing object")

	_, err = f.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(f.bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
	})
	return wrapError("write", path, err)
}

// List drains every ListObjectsV2 page under dirPath.
func (f *Facade) List(ctx context.Context, dirPath string) ([]string, error) {
	f.logger.WithField("prefix", dirPath).Debug("Listing objects")

	keys := []string{}
	p := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(f.bucket),
		Prefix: aws.String(dirPath),
	}, func(o *s3.ListObjectsV2PaginatorOptions) {
		o.Limit = f.pageSize
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, wrapError("list", dirPath, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// ListVersions follows the key and version-id markers until the listing is
// no longer truncated. Delete markers are not versions and are skipped.
func (f *Facade) ListVersions(ctx context.Context, filePath string) ([]string, error) {
	f.logger.WithField("key", filePath).Debug("Listing object versions")

	versions := []string{}
	in := &s3.ListObjectVersionsInput{
		Bucket:  aws.String(f.bucket),
		Prefix:  aws.String(filePath),
		MaxKeys: aws.Int32(f.pageSize),
	}
	for {
		out, err := f.client.ListObjectVersions(ctx, in)
		if err != nil {
			return nil, wrapError("list_versions", filePath, err)
		}
		for _, v := range out.Versions {
			if aws.ToString(v.Key) == filePath {
				versions = append(versions, aws.ToString(v.VersionId))
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		in.KeyMarker = out.NextKeyMarker
		in.VersionIdMarker = out.NextVersionIdMarker
	}
	return versions, nil
}

// Delete removes the object. S3 reports success for absent keys; a NotFound
// from a compatible server is treated the same way.
func (f *Facade) Delete(ctx context.Context, path string) error {
	f.logger.WithField("key", path).Debug("Deleting object")

	_, err := f.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(path),
	})
	if err = wrapError("delete", path, err); storage.IsNotFound(err) {
		return nil
	}
	return err
}

// Move is Copy followed by Delete; see storage.MoveViaCopy.
func (f *Facade) Move(ctx context.Context, from, to string) error {
	f.logger.WithField("from", from).WithField("to", to).Debug("Moving object")
	return storage.MoveViaCopy(ctx, f, storage.ProviderS3, from, to)
}

// Copy performs a server-side CopyObject within the bucket.
func (f *Facade) Copy(ctx context.Context, from, to string) error {
	f.logger.WithField("from", from).WithField("to", to).Debug("Copying object")

	_, err := f.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(f.bucket),
		Key:        aws.String(to),
		CopySource: aws.String(copySource(f.bucket, from)),
	})
	return wrapError("copy", from, err)
}

// Stat maps HeadObject onto storage.ObjectMetadata.
func (f *Facade) Stat(ctx context.Context, path string) (*storage.ObjectMetadata, error) {
	out, err := f.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, wrapError("stat", path, err)
	}

	md := &storage.ObjectMetadata{
		Key:          path,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
		VersionID:    aws.ToString(out.VersionId),
		StorageClass: string(out.StorageClass),
		UserMetadata: make(map[string]string, len(out.Metadata)),
	}
	for k, v := range out.Metadata {
		md.UserMetadata[k] = v
	}
	return md, nil
}

// Probe reports (false, nil) only for NotFound; every other failure is
// returned.
func (f *Facade) Probe(ctx context.Context, path string) (bool, error) {
	_, err := f.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(path),
	})
	if err == nil {
		return true, nil
	}
	if err = wrapError("exists", path, err); storage.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Exists reports false for any failure. Failures other than NotFound are
// logged at WARN since they hide an unreachable or unauthorized store.
func (f *Facade) Exists(ctx context.Context, path string) bool {
	ok, err := f.Probe(ctx, path)
	if err != nil {
		f.logger.WithField("key", path).WithError(err).Warn("Existence check failed, reporting object as absent")
	}
	return ok
}

// Describe returns the bucket's StoreMetadata.
func (f *Facade) Describe() storage.StoreMetadata {
	return f.metadata
}

// copySource formats the x-amz-copy-source value: the bucket followed by the
// URL-escaped key, with "/" kept as the segment separator. S3 decodes "+"
// in this header as a space, so it is escaped too.
func copySource(bucket, key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = strings.ReplaceAll(url.PathEscape(s), "+", "%2B")
	}
	return bucket + "/" + strings.Join(segs, "/")
}
