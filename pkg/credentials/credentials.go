// Package credentials resolves the bearer token used for uploads.
// Tokens can be supplied directly, read from an environment variable, or
// fetched from HashiCorp Vault or AWS Secrets Manager.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/jvreagan/static-pages-deploy/pkg/logging"
	"github.com/jvreagan/static-pages-deploy/pkg/manifest"
	"github.com/jvreagan/static-pages-deploy/pkg/vault"
)

// DefaultTokenEnv is read when the environment source names no variable.
const DefaultTokenEnv = "HALO_TOKEN"

// DefaultVaultKey is the secret key read when the vault source names none.
const DefaultVaultKey = "token"

// SecretReader reads a single value from a secret store.
type SecretReader interface {
	Authenticate(ctx context.Context) error
	GetSecret(ctx context.Context, path, key string) (string, error)
}

// SecretsManagerAPI is the subset of the Secrets Manager client in use.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Manager handles token retrieval from the configured source.
type Manager struct {
	Config manifest.TokenConfig

	// Hooks for tests; nil means the real implementation
	Getenv        func(string) string
	NewVault      func(cfg *vault.Config) (SecretReader, error)
	NewSecretsAPI func(ctx context.Context, cfg *manifest.SecretsManagerConfig) (SecretsManagerAPI, error)
}

// NewManager creates a Manager for cfg.
func NewManager(cfg manifest.TokenConfig) *Manager {
	return &Manager{Config: cfg}
}

// Token returns the bearer token from the configured source.
func (m *Manager) Token(ctx context.Context) (string, error) {
	var (
		token string
		err   error
	)

	switch m.Config.Source {
	case manifest.TokenSourceLiteral:
		token = m.Config.Value
	case "", manifest.TokenSourceEnvironment:
		token, err = m.getFromEnvironment()
	case manifest.TokenSourceVault:
		token, err = m.getFromVault(ctx)
	case manifest.TokenSourceSecretsManager:
		token, err = m.getFromSecretsManager(ctx)
	default:
		return "", fmt.Errorf("unknown token source: %s", m.Config.Source)
	}
	if err != nil {
		return "", err
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("token from %s source is empty", sourceName(m.Config.Source))
	}
	return token, nil
}

// getFromEnvironment reads the token from an environment variable.
func (m *Manager) getFromEnvironment() (string, error) {
	name := m.Config.Env
	if name == "" {
		name = DefaultTokenEnv
	}
	getenv := m.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	token := getenv(name)
	if token == "" {
		return "", fmt.Errorf("token not found in environment variable %s", name)
	}
	logging.Debug("Using token from environment", "variable", name)
	return token, nil
}

// getFromVault reads the token from Vault's KV v2 engine.
func (m *Manager) getFromVault(ctx context.Context) (string, error) {
	vc := m.Config.Vault
	if vc == nil || vc.Path == "" {
		return "", fmt.Errorf("vault path is required for vault token source")
	}

	newVault := m.NewVault
	if newVault == nil {
		newVault = func(cfg *vault.Config) (SecretReader, error) {
			return vault.NewClient(cfg)
		}
	}

	client, err := newVault(&vault.Config{
		Address: vc.Address,
		Auth: vault.AuthConfig{
			Method:   vc.AuthMethod,
			Token:    vc.Token,
			RoleID:   vc.RoleID,
			SecretID: vc.SecretID,
		},
		TLSSkipVerify: vc.TLSSkipVerify,
	})
	if err != nil {
		return "", err
	}
	if err := client.Authenticate(ctx); err != nil {
		return "", fmt.Errorf("failed to authenticate to vault: %w", err)
	}

	key := vc.Key
	if key == "" {
		key = DefaultVaultKey
	}
	logging.Debug("Fetching token from vault", "path", vc.Path, "key", key)
	return client.GetSecret(ctx, vc.Path, key)
}

// getFromSecretsManager reads the token from AWS Secrets Manager.
func (m *Manager) getFromSecretsManager(ctx context.Context) (string, error) {
	sc := m.Config.SecretsManager
	if sc == nil || sc.SecretID == "" {
		return "", fmt.Errorf("secret id is required for secrets-manager token source")
	}

	newAPI := m.NewSecretsAPI
	if newAPI == nil {
		newAPI = newSecretsManagerClient
	}
	client, err := newAPI(ctx, sc)
	if err != nil {
		return "", err
	}

	logging.Debug("Fetching token from AWS Secrets Manager", "secret", sc.SecretID)
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(sc.SecretID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to retrieve secret %s: %w", sc.SecretID, err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", sc.SecretID)
	}

	if sc.Key == "" {
		return *result.SecretString, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(*result.SecretString), &fields); err != nil {
		return "", fmt.Errorf("failed to parse secret JSON: %w", err)
	}
	value, ok := fields[sc.Key].(string)
	if !ok {
		return "", fmt.Errorf("key %s not found in secret %s", sc.Key, sc.SecretID)
	}
	return value, nil
}

// newSecretsManagerClient builds a client from static credentials when given,
// otherwise from the SDK default credential chain.
func newSecretsManagerClient(ctx context.Context, sc *manifest.SecretsManagerConfig) (SecretsManagerAPI, error) {
	var opts []func(*config.LoadOptions) error
	if sc.Region != "" {
		opts = append(opts, config.WithRegion(sc.Region))
	}
	if sc.AccessKeyID != "" && sc.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			sc.AccessKeyID,
			sc.SecretAccessKey,
			"", // session token (optional)
		)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

func sourceName(source string) string {
	if source == "" {
		return manifest.TokenSourceEnvironment
	}
	return source
}
