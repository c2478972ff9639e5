package local

import (
	"context"

	"github.com/sgl-project/fallible/pkg/logging"
	"github.com/sgl-project/fallible/pkg/storage"
)

// NewRegistration exposes New to storage.DefaultFactory, serving stores
// from the host filesystem.
func NewRegistration() storage.Registration {
	return storage.Registration{
		Provider: storage.ProviderLocal,
		New: func(ctx context.Context, cfg storage.Config, logger logging.Interface) (storage.Facade, error) {
			f, err := New(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	}
}

// Module registers the local provider with the storage factory.
var Module = storage.AsRegistration(NewRegistration)
