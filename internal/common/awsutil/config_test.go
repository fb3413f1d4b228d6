package awsutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "region only", config: Config{Region: "us-west-2"}},
		{name: "static keys", config: Config{Region: "us-west-2", AccessKeyID: "AKID", SecretAccessKey: "secret"}},
		{name: "local endpoint", config: Config{Region: "us-west-2", EndpointURL: "http://localhost:4566"}},
		{name: "missing region", config: Config{}, wantErr: "region is required"},
		{name: "half credentials", config: Config{Region: "us-west-2", AccessKeyID: "AKID"}, wantErr: "must be set together"},
		{name: "bad endpoint", config: Config{Region: "us-west-2", EndpointURL: "localhost"}, wantErr: "endpoint_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_StaticCredentials(t *testing.T) {
	cfg, err := Load(context.Background(), &Config{
		Region:          "us-west-2",
		AccessKeyID:     "AKID",
		SecretAccessKey: "secret",
		SessionToken:    "token",
	})
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", cfg.Region)

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKID", creds.AccessKeyID)
	assert.Equal(t, "token", creds.SessionToken)
}

func TestEndpoint(t *testing.T) {
	assert.Nil(t, (&Config{}).Endpoint())
	assert.Equal(t, "http://localhost:4566", *(&Config{EndpointURL: "http://localhost:4566"}).Endpoint())
}
