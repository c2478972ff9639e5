package s3

import (
	"context"

	"github.com/sgl-project/fallible/pkg/logging"
	"github.com/sgl-project/fallible/pkg/storage"
)

// NewRegistration exposes New to storage.DefaultFactory.
func NewRegistration() storage.Registration {
	return storage.Registration{
		Provider: storage.ProviderS3,
		New: func(ctx context.Context, cfg storage.Config, logger logging.Interface) (storage.Facade, error) {
			f, err := New(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	}
}

// Module registers the S3 provider with the storage factory.
var Module = storage.AsRegistration(NewRegistration)
