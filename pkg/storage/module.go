package storage

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/sgl-project/fallible/pkg/logging"
)

// ProviderGroup is the fx value group backend modules contribute to.
const ProviderGroup = "storage_providers"

type factoryParams struct {
	fx.In

	Logger        logging.Interface
	Registrations []Registration `group:"storage_providers"`
}

// ProvideFactory is the fx provider function for the storage factory.
func ProvideFactory(p factoryParams) *DefaultFactory {
	return NewDefaultFactory(p.Logger, p.Registrations...)
}

// ProvideFacade creates the facade configured under the "storage" key.
func ProvideFacade(lc fx.Lifecycle, v *viper.Viper, factory *DefaultFactory, logger logging.Interface) (Facade, error) {
	cfg, err := NewConfig(WithViper(v))
	if err != nil {
		return nil, fmt.Errorf("invalid storage configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})

	f, err := factory.Create(ctx, *cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create storage provider %s: %w", cfg.Provider, err)
	}

	logger.WithField("provider", cfg.Provider).
		WithField("store", f.Describe().String()).
		Info("Storage facade initialized")

	return f, nil
}

// Module provides the factory and the configured Facade. Backend modules
// must be added alongside it for their providers to be available.
var Module = fx.Options(
	fx.Provide(ProvideFactory),
	fx.Provide(ProvideFacade),
)

// AsRegistration annotates a Registration constructor so its result joins
// the provider group.
func AsRegistration(ctor interface{}) fx.Option {
	return fx.Provide(fx.Annotate(ctor, fx.ResultTags(`group:"storage_providers"`)))
}
