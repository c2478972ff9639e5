package configutils

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// ViperOptions describes where a command's configuration comes from.
type ViperOptions struct {
	// EnvPrefix is prepended to every environment key, e.g. STORECTL.
	EnvPrefix string
	// ConfigFile is optional; without it only env and flags apply.
	ConfigFile string
	// Flags binds config keys to flag names in FlagSet.
	Flags   map[string]string
	FlagSet *pflag.FlagSet
	Loader  *Loader
}

// NewViper builds a viper reading env overrides, bound flags and, when set,
// the config file with its imports.
func NewViper(opts ViperOptions) (*viper.Viper, error) {
	v := viper.New()

	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.FlagSet != nil {
		for key, name := range opts.Flags {
			f := opts.FlagSet.Lookup(name)
			if f == nil {
				return nil, fmt.Errorf("can't bind %s: no flag named %q", key, name)
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("can't bind %s flag: %w", name, err)
			}
		}
	}

	if opts.ConfigFile != "" {
		loader := opts.Loader
		if loader == nil {
			loader = NewLoader(nil)
		}
		if err := loader.Load(v, opts.ConfigFile); err != nil {
			return nil, fmt.Errorf("cannot read config file: %w", err)
		}
	}

	return v, nil
}

// ProvideViper supplies the *viper.Viper NewViper builds to an fx app.
func ProvideViper(opts ViperOptions) fx.Option {
	return fx.Provide(func() (*viper.Viper, error) {
		return NewViper(opts)
	})
}
