package s3

import (
	"errors"
	"fmt"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"

	"github.com/sgl-project/fallible/pkg/storage"
)

// ErrNoSuchBucket marks a bucket that disappeared after construction. It is
// a backend failure and never reads as an absent object.
var ErrNoSuchBucket = errors.New("s3: bucket does not exist")

// classify maps an SDK error onto the storage sentinels while keeping the
// original error in the chain for diagnostics.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchVersion":
			return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
		case "NoSuchBucket":
			return fmt.Errorf("%w: %w", ErrNoSuchBucket, err)
		case "AccessDenied", "Forbidden", "AllAccessDisabled", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %w", storage.ErrAccessDenied, err)
		}
	}

	// HEAD responses carry no body, so the status code is all there is.
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", storage.ErrAccessDenied, err)
		}
	}

	return err
}

// classifyBucket is classify for HeadBucket, where a missing bucket is the
// store's NotFound.
func classifyBucket(err error) error {
	err = classify(err)
	if errors.Is(err, ErrNoSuchBucket) {
		return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
	}
	return err
}

func wrapError(op, path string, err error) error {
	return storage.NewError(op, path, string(storage.ProviderS3), classify(err))
}
