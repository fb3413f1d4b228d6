// Package awsutil loads AWS SDK configuration shared by the SQS queue and
// the DynamoDB store.
package awsutil

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"quotagate/internal/common/errors"
	"quotagate/internal/common/validation"
)

// Config holds AWS connection settings. Static credentials are used only
// when both keys are set; otherwise the default provider chain applies.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// EndpointURL overrides service endpoints, e.g. for LocalStack
	EndpointURL string
}

func (c *Config) Validate() error {
	v := validation.NewValidatorWithPrefix("AWS config")
	v.RequireString(c.Region, "region")
	v.ValidateIf(c.AccessKeyID != "" || c.SecretAccessKey != "", func() error {
		if c.AccessKeyID == "" || c.SecretAccessKey == "" {
			return errors.ConfigError("access key id and secret access key must be set together")
		}
		return nil
	})
	v.ValidateIf(c.EndpointURL != "", func() error {
		return validation.NewValidator().RequireURL(c.EndpointURL, "endpoint_url").Error()
	})
	return v.Error()
}

// HasStaticCredentials reports whether explicit keys were configured
func (c *Config) HasStaticCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// Load resolves an aws.Config for c
func Load(ctx context.Context, c *Config) (aws.Config, error) {
	if err := c.Validate(); err != nil {
		return aws.Config{}, err
	}

	opts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(c.Region),
	}
	if c.HasStaticCredentials() {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		))
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errors.ConnectionError("failed to load AWS config", err)
	}
	return cfg, nil
}

// Endpoint returns the override endpoint as an SDK option value, or nil
func (c *Config) Endpoint() *string {
	if c.EndpointURL == "" {
		return nil
	}
	return aws.String(c.EndpointURL)
}
