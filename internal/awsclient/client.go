// Package awsclient builds AWS SDK clients from the govtrail configuration.
package awsclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/ppiankov/govtrail/internal/config"
)

// Clients are the service clients govtrail uses.
type Clients struct {
	IAM        *iam.Client
	CloudWatch *cloudwatch.Client
}

// LoadConfig resolves region and credentials. Static keys in cfg take
// precedence over the default chain (environment, shared files, IMDS).
func LoadConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return aws.Config{}, errors.New("aws.access_key_id and aws.secret_access_key must be set together")
		}
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("awsclient: load config: %w", err)
	}
	return awsCfg, nil
}

// New loads the SDK configuration and builds every client. A non-empty
// endpoint overrides the service endpoints (LocalStack and similar).
func New(ctx context.Context, cfg config.AWSConfig) (*Clients, error) {
	awsCfg, err := LoadConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Clients{
		IAM:        NewIAM(awsCfg, cfg.Endpoint),
		CloudWatch: NewCloudWatch(awsCfg, cfg.Endpoint),
	}, nil
}

// NewIAM builds an IAM client.
func NewIAM(awsCfg aws.Config, endpoint string) *iam.Client {
	return iam.NewFromConfig(awsCfg, func(o *iam.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// NewCloudWatch builds a CloudWatch client.
func NewCloudWatch(awsCfg aws.Config, endpoint string) *cloudwatch.Client {
	return cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}
