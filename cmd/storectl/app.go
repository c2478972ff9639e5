package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/sgl-project/fallible/pkg/configutils"
	"github.com/sgl-project/fallible/pkg/logging"
	"github.com/sgl-project/fallible/pkg/storage"
	"github.com/sgl-project/fallible/pkg/storage/local"
	"github.com/sgl-project/fallible/pkg/storage/metrics"
	"github.com/sgl-project/fallible/pkg/storage/s3"
)

const envPrefix = "STORECTL"

// storeFlags maps viper keys to the persistent flags that override them.
var storeFlags = map[string]string{
	"debug":                    "debug",
	"storage.provider":         "provider",
	"storage.name":             "store",
	"storage.description":      "description",
	"storage.root":             "root",
	"storage.region":           "region",
	"storage.endpoint":         "endpoint",
	"storage.force_path_style": "force-path-style",
}

// runner binds the configured store and hands it to action.
type runner func(cmd *cobra.Command, action func(ctx context.Context, f storage.Facade) error) error

func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	v, err := configutils.NewViper(configutils.ViperOptions{
		EnvPrefix:  envPrefix,
		ConfigFile: configFile,
		FlagSet:    cmd.Flags(),
		Flags:      storeFlags,
	})
	if err != nil {
		return nil, err
	}
	v.SetDefault(logging.ConfigKey+".level", string(logging.LevelWarn))
	return v, nil
}

// runWithApp starts an fx app holding the configured facade, runs action
// and stops the app again.
func runWithApp(cmd *cobra.Command, action func(ctx context.Context, f storage.Facade) error) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}

	var (
		facade   storage.Facade
		logger   logging.Interface
		gatherer prometheus.Gatherer
	)
	app := fx.New(
		fx.Supply(v),
		logging.Module,
		logging.UseLoggingInterface,
		storage.Module,
		s3.Module,
		local.Module,
		metrics.Module,
		fx.Populate(&facade, &logger, &gatherer),
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("starting storectl: %w", err)
	}
	defer func() {
		if err := app.Stop(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to stop storectl cleanly")
		}
	}()

	err = action(ctx, facade)

	metricsFile, _ := cmd.Flags().GetString("metrics-file")
	if metricsFile != "" {
		if werr := prometheus.WriteToTextfile(metricsFile, gatherer); werr != nil {
			logger.WithError(werr).WithField("path", metricsFile).Warn("Failed to write metrics")
		}
	}
	return err
}
