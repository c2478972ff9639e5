package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/ec2rolecreds"
	"github.com/aws/aws-sdk-go-v2/credentials/endpointcreds"
	"github.com/aws/aws-sdk-go-v2/credentials/processcreds"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sgl-project/fallible/pkg/logging"
)

// Factory turns a Config into an aws.CredentialsProvider.
type Factory struct {
	logger logging.Interface

	// loadConfig is swapped in tests to avoid touching the environment.
	loadConfig func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error)
}

// NewFactory creates a new AWS auth factory
func NewFactory(logger logging.Interface) *Factory {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Factory{
		logger:     logger,
		loadConfig: awsconfig.LoadDefaultConfig,
	}
}

// SupportedAuthTypes returns supported AWS auth types
func (f *Factory) SupportedAuthTypes() []AuthType {
	return []AuthType{
		AccessKey,
		AssumeRole,
		InstanceProfile,
		WebIdentity,
		ECSTaskRole,
		Process,
		Default,
	}
}

// Provider builds a credentials provider for cfg. An empty Type is treated
// as Default. Providers that fetch temporary credentials are wrapped in an
// aws.CredentialsCache.
func (f *Factory) Provider(ctx context.Context, cfg Config) (aws.CredentialsProvider, error) {
	if cfg.Type == "" {
		cfg.Type = Default
	}

	var (
		provider aws.CredentialsProvider
		err      error
	)
	switch cfg.Type {
	case AccessKey:
		provider, err = f.accessKeyProvider(cfg)
	case AssumeRole:
		provider, err = f.assumeRoleProvider(ctx, cfg)
	case InstanceProfile:
		provider = aws.NewCredentialsCache(ec2rolecreds.New())
	case WebIdentity:
		provider, err = f.webIdentityProvider(ctx, cfg)
	case ECSTaskRole:
		provider, err = f.ecsTaskRoleProvider(cfg)
	case Process:
		provider, err = f.processProvider(cfg)
	case Default:
		provider, err = f.defaultProvider(ctx, cfg)
	default:
		return nil, errors.Errorf("unsupported AWS auth type: %s", cfg.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create AWS credentials provider for %s", cfg.Type)
	}

	f.logger.WithField("auth_type", cfg.Type).Debug("AWS credentials provider created")
	return provider, nil
}

func (f *Factory) accessKeyProvider(cfg Config) (aws.CredentialsProvider, error) {
	var ak AccessKeyConfig
	if err := decodeExtra(cfg.Extra, &ak); err != nil {
		return nil, err
	}
	ak.fromEnv()
	if err := ak.Validate(); err != nil {
		return nil, err
	}
	return credentials.NewStaticCredentialsProvider(ak.AccessKeyID, ak.SecretAccessKey, ak.SessionToken), nil
}

func (f *Factory) assumeRoleProvider(ctx context.Context, cfg Config) (aws.CredentialsProvider, error) {
	var ar AssumeRoleConfig
	if err := decodeExtra(cfg.Extra, &ar); err != nil {
		return nil, err
	}
	ar.fromEnv()
	if ar.RoleSessionName == "" {
		ar.RoleSessionName = sessionName()
	}
	if err := ar.Validate(); err != nil {
		return nil, err
	}

	base, err := f.baseConfig(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}

	p := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(base), ar.RoleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = ar.RoleSessionName
		if ar.ExternalID != "" {
			o.ExternalID = aws.String(ar.ExternalID)
		}
		if ar.Duration > 0 {
			o.Duration = ar.Duration
		}
	})
	return aws.NewCredentialsCache(p), nil
}

func (f *Factory) webIdentityProvider(ctx context.Context, cfg Config) (aws.CredentialsProvider, error) {
	var wi WebIdentityConfig
	if err := decodeExtra(cfg.Extra, &wi); err != nil {
		return nil, err
	}
	wi.fromEnv()
	if wi.RoleSessionName == "" {
		wi.RoleSessionName = sessionName()
	}
	if err := wi.Validate(); err != nil {
		return nil, err
	}

	base, err := f.baseConfig(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}

	p := stscreds.NewWebIdentityRoleProvider(
		sts.NewFromConfig(base),
		wi.RoleARN,
		stscreds.IdentityTokenFile(wi.TokenFile),
		func(o *stscreds.WebIdentityRoleOptions) {
			o.RoleSessionName = wi.RoleSessionName
		},
	)
	return aws.NewCredentialsCache(p), nil
}

func (f *Factory) ecsTaskRoleProvider(cfg Config) (aws.CredentialsProvider, error) {
	var ecs ECSTaskRoleConfig
	if err := decodeExtra(cfg.Extra, &ecs); err != nil {
		return nil, err
	}
	ecs.fromEnv()
	if err := ecs.Validate(); err != nil {
		return nil, err
	}

	p := endpointcreds.New(ecs.endpoint(), func(o *endpointcreds.Options) {
		o.AuthorizationToken = ecs.AuthorizationToken
	})
	return aws.NewCredentialsCache(p), nil
}

func (f *Factory) processProvider(cfg Config) (aws.CredentialsProvider, error) {
	var pc ProcessConfig
	if err := decodeExtra(cfg.Extra, &pc); err != nil {
		return nil, err
	}
	pc.fromEnv()
	if pc.Timeout == 0 {
		pc.Timeout = defaultProcessTimeout
	}
	if err := pc.Validate(); err != nil {
		return nil, err
	}

	p := processcreds.NewProvider(pc.Command, func(o *processcreds.Options) {
		o.Timeout = pc.Timeout
	})
	return aws.NewCredentialsCache(p), nil
}

// defaultProvider resolves the SDK's default chain: environment, shared
// config and profiles, web identity, container and instance metadata.
func (f *Factory) defaultProvider(ctx context.Context, cfg Config) (aws.CredentialsProvider, error) {
	base, err := f.baseConfig(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}
	if base.Credentials == nil {
		return nil, errors.New("default credential chain resolved no provider")
	}
	return base.Credentials, nil
}

func (f *Factory) baseConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := f.loadConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errors.Wrap(err, "failed to load AWS config")
	}
	return cfg, nil
}

func sessionName() string {
	return "fallible-" + uuid.NewString()
}
