package s3

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	awsauth "github.com/sgl-project/fallible/pkg/auth/aws"
	"github.com/sgl-project/fallible/pkg/logging"
	"github.com/sgl-project/fallible/pkg/storage"
)

const (
	maxIdleConns    = 100
	idleConnTimeout = 90 * time.Second

	// S3-compatible servers such as MinIO accept any region but the signer
	// still needs one.
	fallbackRegion = "us-east-1"
)

// newClient builds an *s3.Client for cfg. Credentials come from
// pkg/auth/aws; the request path itself has no client-side timeout.
func newClient(ctx context.Context, cfg storage.Config, logger logging.Interface) (*s3.Client, error) {
	authCfg := awsauth.Config{Region: cfg.Region}
	if cfg.Auth != nil {
		authCfg.Type = awsauth.AuthType(cfg.Auth.Type)
		authCfg.Extra = cfg.Auth.Extra
	}
	creds, err := awsauth.NewFactory(logger).Provider(ctx, authCfg)
	if err != nil {
		return nil, err
	}

	httpClient := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
		tr.MaxIdleConns = maxIdleConns
		tr.MaxIdleConnsPerHost = maxIdleConns
		tr.IdleConnTimeout = idleConnTimeout
	})

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithHTTPClient(httpClient),
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = fallbackRegion
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}
