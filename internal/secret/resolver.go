// Package secret provides an abstraction for retrieving secrets from
// different backends (SSM Parameter Store, environment variables).
package secret

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"
)

// SSMClient is the subset of *ssm.Client methods used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver retrieves secret values by name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SSMResolver fetches secrets from AWS Systems Manager Parameter Store.
type SSMResolver struct {
	client SSMClient
}

// NewSSMResolver returns a Resolver backed by SSM Parameter Store.
func NewSSMResolver(client SSMClient) Resolver {
	return &SSMResolver{client: client}
}

// GetSecret retrieves a SecureString parameter from SSM with decryption.
func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ssm get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("ssm parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}

// EnvResolver fetches secrets from environment variables.
// "/explorer/oauth-client-secret" is read from OAUTH_CLIENT_SECRET.
type EnvResolver struct{}

// NewEnvResolver returns a Resolver that reads from environment variables.
func NewEnvResolver() Resolver {
	return &EnvResolver{}
}

// GetSecret reads from the environment variable derived from the parameter name.
func (r *EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	envName := paramNameToEnvVar(name)
	val := os.Getenv(envName)
	if val == "" {
		return "", fmt.Errorf("environment variable %q (from param %q) is not set", envName, name)
	}
	return val, nil
}

// CachedResolver memoizes successful lookups for the life of the process.
type CachedResolver struct {
	next   Resolver
	mu     sync.Mutex
	values map[string]string
}

// NewCachedResolver wraps next with a process-wide cache.
func NewCachedResolver(next Resolver) *CachedResolver {
	return &CachedResolver{next: next, values: make(map[string]string)}
}

func (c *CachedResolver) GetSecret(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	v, ok := c.values[name]
	c.mu.Unlock()
	if ok {
		return v, nil
	}

	v, err := c.next.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.values[name] = v
	c.mu.Unlock()
	return v, nil
}

// ResolveOr returns the secret or fallback when it cannot be resolved, logging a warning.
func ResolveOr(ctx context.Context, r Resolver, name, fallback string) string {
	v, err := r.GetSecret(ctx, name)
	if err != nil {
		zap.L().Warn("failed to resolve secret", zap.String("param", name), zap.Error(err))
		return fallback
	}
	return v
}

// paramNameToEnvVar converts an SSM parameter name to an environment variable name.
// "/explorer/jwt-secret" -> "JWT_SECRET"
func paramNameToEnvVar(name string) string {
	parts := strings.Split(name, "/")
	last := parts[len(parts)-1]
	return strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}
