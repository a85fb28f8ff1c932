// Package manifest provides types and functions for parsing and validating
// deploy files. A deploy file is an optional YAML document that supplies
// defaults for every deploy flag, so CI jobs can keep the endpoint, project,
// and token source in the repository instead of on the command line.
package manifest

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Token sources understood by the credentials package.
const (
	TokenSourceLiteral        = "literal"
	TokenSourceEnvironment    = "environment"
	TokenSourceVault          = "vault"
	TokenSourceSecretsManager = "secrets-manager"
)

// Manifest represents a deploy file.
//
// Example:
//
//	version: "1.0"
//	endpoint: https://halo.example.com
//	project_id: my-site
//	source: ./dist
//	token:
//	  source: environment
//	  env: HALO_TOKEN
type Manifest struct {
	// Version of the deploy file schema (currently "1.0")
	Version string `yaml:"version"`

	// Halo API base URL
	Endpoint string `yaml:"endpoint"`

	// Static-pages project identifier
	ProjectID string `yaml:"project_id"`

	// File or directory to deploy, relative to the working directory
	Source string `yaml:"source"`

	// Target directory inside the project - optional
	Dir string `yaml:"dir,omitempty"`

	// Overall upload timeout (e.g., "10m") - optional, zero means no timeout
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Where the bearer token comes from
	Token TokenConfig `yaml:"token"`
}

// TokenConfig selects and configures the source of the bearer token.
type TokenConfig struct {
	// Source is one of: literal, environment, vault, secrets-manager.
	// Empty means environment.
	Source string `yaml:"source"`

	// Literal token value (source: literal). Prefer another source in
	// files that are committed.
	Value string `yaml:"value,omitempty"`

	// Environment variable holding the token (source: environment)
	Env string `yaml:"env,omitempty"`

	// HashiCorp Vault settings (source: vault)
	Vault *VaultConfig `yaml:"vault,omitempty"`

	// AWS Secrets Manager settings (source: secrets-manager)
	SecretsManager *SecretsManagerConfig `yaml:"secrets_manager,omitempty"`
}

// VaultConfig locates the token in Vault's KV v2 secrets engine.
type VaultConfig struct {
	// Vault server address - optional, defaults to VAULT_ADDR
	Address string `yaml:"address,omitempty"`

	// Auth method: token or approle (default: token)
	AuthMethod string `yaml:"auth_method,omitempty"`

	// Vault token for token auth - optional, defaults to VAULT_TOKEN
	Token string `yaml:"vault_token,omitempty"`

	// AppRole credentials
	RoleID   string `yaml:"role_id,omitempty"`
	SecretID string `yaml:"secret_id,omitempty"`

	// KV v2 path, including "/data/" (e.g., "secret/data/halo/deploy")
	Path string `yaml:"path"`

	// Key within the secret data (default: token)
	Key string `yaml:"key,omitempty"`

	// Skip TLS verification (not recommended)
	TLSSkipVerify bool `yaml:"tls_skip_verify,omitempty"`
}

// SecretsManagerConfig locates the token in AWS Secrets Manager.
type SecretsManagerConfig struct {
	// Secret name or ARN
	SecretID string `yaml:"secret_id"`

	// JSON key inside the secret - optional, the whole secret string is used when empty
	Key string `yaml:"key,omitempty"`

	// AWS region - optional, falls back to the SDK default chain
	Region string `yaml:"region,omitempty"`

	// Static credentials - optional, the SDK default chain is used when empty
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

// Load reads a deploy file from disk, parses it, and validates it.
// Returns an error if the file cannot be read, is invalid YAML, or fails validation.
func Load(filename string) (*Manifest, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	return &manifest, nil
}

// Validate checks the deploy file for inconsistent settings. Required deploy
// values are not checked here because flags may still supply them.
func (m *Manifest) Validate() error {
	if m.Version != "" && m.Version != "1.0" {
		return fmt.Errorf("unsupported manifest version %q", m.Version)
	}
	if m.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return m.Token.Validate()
}

// Validate checks that the selected token source is fully configured.
func (t *TokenConfig) Validate() error {
	switch t.Source {
	case "", TokenSourceEnvironment:
		return nil

	case TokenSourceLiteral:
		if t.Value == "" {
			return fmt.Errorf("token.value is required for literal token source")
		}

	case TokenSourceVault:
		if t.Vault == nil || t.Vault.Path == "" {
			return fmt.Errorf("token.vault.path is required for vault token source")
		}
		switch t.Vault.AuthMethod {
		case "", "token":
		case "approle":
			if t.Vault.RoleID == "" || t.Vault.SecretID == "" {
				return fmt.Errorf("token.vault.role_id and token.vault.secret_id are required for approle auth")
			}
		default:
			return fmt.Errorf("unsupported vault auth method: %s", t.Vault.AuthMethod)
		}

	case TokenSourceSecretsManager:
		if t.SecretsManager == nil || t.SecretsManager.SecretID == "" {
			return fmt.Errorf("token.secrets_manager.secret_id is required for secrets-manager token source")
		}
		sm := t.SecretsManager
		if (sm.AccessKeyID == "") != (sm.SecretAccessKey == "") {
			return fmt.Errorf("token.secrets_manager.access_key_id and secret_access_key must be set together")
		}

	default:
		return fmt.Errorf("unknown token source: %s", t.Source)
	}
	return nil
}
