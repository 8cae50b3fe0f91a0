package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretFetcher is the part of the Secrets Manager client used here.
type SecretFetcher interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// newSecretFetcher is a seam for tests.
var newSecretFetcher = func(ctx context.Context, region string) (SecretFetcher, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return secretsmanager.NewFromConfig(awsCfg), nil
}

// resolveSecretKey replaces config.SecretKey with the secret named by
// SecretKeyID. The secret is either the raw key or a JSON object with a
// "secret_key" field.
func resolveSecretKey(ctx context.Context, config *Config) error {
	if config.SecretKeyID == "" {
		return nil
	}

	client, err := newSecretFetcher(ctx, config.AWSRegion)
	if err != nil {
		return err
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(config.SecretKeyID),
	})
	if err != nil {
		return fmt.Errorf("fetching secret %s: %w", config.SecretKeyID, err)
	}

	var payload string
	switch {
	case out.SecretString != nil:
		payload = *out.SecretString
	case len(out.SecretBinary) > 0:
		payload = string(out.SecretBinary)
	default:
		return fmt.Errorf("secret %s has no payload", config.SecretKeyID)
	}

	if strings.HasPrefix(strings.TrimSpace(payload), "{") {
		var kv struct {
			SecretKey string `json:"secret_key"`
		}
		if err := json.Unmarshal([]byte(payload), &kv); err != nil {
			return fmt.Errorf("parsing secret %s as JSON: %w", config.SecretKeyID, err)
		}
		if kv.SecretKey == "" {
			return fmt.Errorf("secret %s has no secret_key field", config.SecretKeyID)
		}
		payload = kv.SecretKey
	}

	config.SecretKey = payload
	return nil
}
