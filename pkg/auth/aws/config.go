package aws

import (
	"os"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// AuthType selects how AWS credentials are obtained.
type AuthType string

const (
	AccessKey       AuthType = "AccessKey"
	AssumeRole      AuthType = "AssumeRole"
	InstanceProfile AuthType = "InstanceProfile"
	WebIdentity     AuthType = "WebIdentity"
	ECSTaskRole     AuthType = "ECSTaskRole"
	Process         AuthType = "Process"
	Default         AuthType = "Default"
)

// Config is the input to Factory.Provider. Extra holds the type-specific
// settings below as a flat map, the way they appear under storage.auth.extra.
type Config struct {
	Type   AuthType
	Region string
	Extra  map[string]interface{}
}

// AccessKeyConfig represents static access key credentials.
type AccessKeyConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
}

func (c *AccessKeyConfig) fromEnv() {
	setFromEnv(&c.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setFromEnv(&c.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setFromEnv(&c.SessionToken, "AWS_SESSION_TOKEN")
}

// Validate validates the access key configuration
func (c *AccessKeyConfig) Validate() error {
	if c.AccessKeyID == "" {
		return errors.New("access_key_id is required")
	}
	if c.SecretAccessKey == "" {
		return errors.New("secret_access_key is required")
	}
	return nil
}

// AssumeRoleConfig represents an STS AssumeRole setup.
type AssumeRoleConfig struct {
	RoleARN         string        `mapstructure:"role_arn"`
	RoleSessionName string        `mapstructure:"role_session_name"`
	ExternalID      string        `mapstructure:"external_id"`
	Duration        time.Duration `mapstructure:"duration"`
}

func (c *AssumeRoleConfig) fromEnv() {
	setFromEnv(&c.RoleARN, "AWS_ROLE_ARN")
	setFromEnv(&c.RoleSessionName, "AWS_ROLE_SESSION_NAME")
}

// Validate validates the assume role configuration
func (c *AssumeRoleConfig) Validate() error {
	if c.RoleARN == "" {
		return errors.New("role_arn is required")
	}
	if c.Duration < 0 {
		return errors.Errorf("duration must not be negative, got %s", c.Duration)
	}
	return nil
}

// WebIdentityConfig represents an STS AssumeRoleWithWebIdentity setup.
type WebIdentityConfig struct {
	RoleARN         string `mapstructure:"role_arn"`
	TokenFile       string `mapstructure:"token_file"`
	RoleSessionName string `mapstructure:"role_session_name"`
}

func (c *WebIdentityConfig) fromEnv() {
	setFromEnv(&c.RoleARN, "AWS_ROLE_ARN")
	setFromEnv(&c.TokenFile, "AWS_WEB_IDENTITY_TOKEN_FILE")
	setFromEnv(&c.RoleSessionName, "AWS_ROLE_SESSION_NAME")
}

// Validate validates the web identity configuration
func (c *WebIdentityConfig) Validate() error {
	if c.RoleARN == "" {
		return errors.New("role_arn is required for web identity")
	}
	if c.TokenFile == "" {
		return errors.New("token_file is required for web identity")
	}
	return nil
}

// ECSTaskRoleConfig represents the container credentials endpoint.
type ECSTaskRoleConfig struct {
	RelativeURI        string `mapstructure:"relative_uri"`
	FullURI            string `mapstructure:"full_uri"`
	AuthorizationToken string `mapstructure:"authorization_token"`
}

func (c *ECSTaskRoleConfig) fromEnv() {
	setFromEnv(&c.RelativeURI, "AWS_CONTAINER_CREDENTIALS_RELATIVE_URI")
	setFromEnv(&c.FullURI, "AWS_CONTAINER_CREDENTIALS_FULL_URI")
	setFromEnv(&c.AuthorizationToken, "AWS_CONTAINER_AUTHORIZATION_TOKEN")
}

// Validate validates the ECS task role configuration
func (c *ECSTaskRoleConfig) Validate() error {
	if c.RelativeURI == "" && c.FullURI == "" {
		return errors.New("either relative_uri or full_uri must be specified for ECS task role")
	}
	return nil
}

// endpoint returns the URL credentials are fetched from.
func (c *ECSTaskRoleConfig) endpoint() string {
	if c.FullURI != "" {
		return c.FullURI
	}
	return ecsCredentialsHost + c.RelativeURI
}

// ProcessConfig represents an external credential_process command.
type ProcessConfig struct {
	Command string        `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func (c *ProcessConfig) fromEnv() {
	setFromEnv(&c.Command, "AWS_CREDENTIAL_PROCESS")
}

// Validate validates the process configuration
func (c *ProcessConfig) Validate() error {
	if c.Command == "" {
		return errors.New("command is required for process credentials provider")
	}
	return nil
}

const (
	ecsCredentialsHost    = "http://169.254.170.2"
	defaultProcessTimeout = time.Minute
)

// decodeExtra fills out from the flat Extra map. Durations may be given as
// strings ("15m") or as whole seconds.
func decodeExtra(extra map[string]interface{}, out interface{}) error {
	if len(extra) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errors.Wrap(err, "cannot build auth config decoder")
	}
	return errors.Wrap(dec.Decode(extra), "invalid auth extra settings")
}

var durationType = reflect.TypeOf(time.Duration(0))

func secondsToDurationHook(_, to reflect.Type, data interface{}) (interface{}, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return data, nil
}

func setFromEnv(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}
