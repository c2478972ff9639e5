package storage

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/sgl-project/fallible/pkg/configutils"
)

// ViperKey is the root configuration key for the store definition.
const ViperKey = "storage"

// DefaultPageSize is the number of keys requested per listing page.
const DefaultPageSize int32 = 1000

// AuthConfig selects how a backend authenticates. Extra carries
// type-specific settings such as role ARNs or static keys.
type AuthConfig struct {
	Type  string                 `mapstructure:"type"`
	Extra map[string]interface{} `mapstructure:"extra"`
}

// Config holds the definition of a single store. Fields are populated using
// viper, environment values, or explicitly through Options.
type Config struct {
	Provider    Provider `mapstructure:"provider" validate:"required,oneof=s3 local"`
	Name        string   `mapstructure:"name" validate:"required_if=Provider s3"`
	Description string   `mapstructure:"description" validate:"required"`

	// Object store settings
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint" validate:"omitempty,url"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	PageSize       int32  `mapstructure:"page_size" validate:"gte=0,lte=1000"`

	// Local filesystem settings
	Root string `mapstructure:"root" validate:"required_if=Provider local"`

	Auth *AuthConfig `mapstructure:"auth"`
}

// Option is a functional configuration override for building a Config.
type Option func(*Config) error

// Apply applies the given options to the configuration.
func (c *Config) Apply(opts ...Option) error {
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(c); err != nil {
			return err
		}
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		PageSize: DefaultPageSize,
	}
}

// NewConfig builds a Config from defaults and the given options, then
// validates it.
func NewConfig(opts ...Option) (*Config, error) {
	c := defaultConfig()
	if err := c.Apply(opts...); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// WithViper populates the Config from the "storage" key, with environment
// overrides bound for every field.
func WithViper(v *viper.Viper) Option {
	return func(c *Config) error {
		if v == nil {
			return errors.New("nil viper")
		}
		if err := configutils.BindEnvsRecursive(v, c, ViperKey); err != nil {
			return fmt.Errorf("error occurred when binding environment variables: %w", err)
		}

		var root struct {
			Storage *Config `mapstructure:"storage"`
		}
		root.Storage = c
		if err := v.Unmarshal(&root); err != nil {
			return fmt.Errorf("error occurred when unmarshalling config: %w", err)
		}
		return nil
	}
}

// WithProvider sets the backend family.
func WithProvider(p Provider) Option {
	return func(c *Config) error {
		c.Provider = p
		return nil
	}
}

// WithStore sets the store name and its description.
func WithStore(name, description string) Option {
	return func(c *Config) error {
		c.Name = name
		c.Description = description
		return nil
	}
}

// WithRoot sets the root directory of a local store.
func WithRoot(root string) Option {
	return func(c *Config) error {
		c.Root = root
		return nil
	}
}

// WithRegion sets the object store region.
func WithRegion(region string) Option {
	return func(c *Config) error {
		c.Region = region
		return nil
	}
}

// WithEndpoint points the object store client at a custom endpoint, e.g.
// MinIO. Path-style addressing is usually required for those.
func WithEndpoint(endpoint string, forcePathStyle bool) Option {
	return func(c *Config) error {
		c.Endpoint = endpoint
		c.ForcePathStyle = forcePathStyle
		return nil
	}
}

// WithPageSize sets the listing page size.
func WithPageSize(n int32) Option {
	return func(c *Config) error {
		c.PageSize = n
		return nil
	}
}

// WithAuth sets the authentication settings.
func WithAuth(authType string, extra map[string]interface{}) Option {
	return func(c *Config) error {
		c.Auth = &AuthConfig{Type: authType, Extra: extra}
		return nil
	}
}

// Validate checks struct tags plus cross-field rules, and reports every
// violation at once. Each reported error matches ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for _, fe := range verrs {
			errs = multierror.Append(errs, fmt.Errorf("%w: %s failed on %q", ErrInvalidConfig, fe.Namespace(), fe.Tag()))
		}
	}

	if c.Provider == ProviderLocal && c.Root != "" && !filepath.IsAbs(c.Root) {
		errs = multierror.Append(errs, fmt.Errorf("%w: root %q must be absolute", ErrInvalidConfig, c.Root))
	}
	if c.Provider == ProviderLocal && c.Endpoint != "" {
		errs = multierror.Append(errs, fmt.Errorf("%w: endpoint is not used by local stores", ErrInvalidConfig))
	}

	return errs.ErrorOrNil()
}

// StoreName returns the backend-addressable name of the configured store.
// Local stores without an explicit name use the base name of their root.
func (c *Config) StoreName() string {
	if c.Name != "" || c.Provider != ProviderLocal {
		return c.Name
	}
	return filepath.Base(filepath.Clean(c.Root))
}
