// Package vault provides integration with HashiCorp Vault for secret management.
// It supports token and AppRole authentication and reads secrets from Vault's
// KV v2 secrets engine.
package vault

import (
	"context"
	"fmt"
	"os"

	vault "github.com/hashicorp/vault/api"
)

// Config holds Vault configuration including address and authentication details.
type Config struct {
	// Address is the Vault server address (e.g., "http://127.0.0.1:8200").
	// Empty means VAULT_ADDR.
	Address string

	// Auth holds authentication configuration
	Auth AuthConfig

	// TLSSkipVerify skips TLS certificate verification (not recommended for production)
	TLSSkipVerify bool
}

// AuthConfig specifies the authentication method and credentials.
type AuthConfig struct {
	// Method is the auth method: "token" or "approle". Empty means "token".
	Method string

	// Token for token authentication. Empty means VAULT_TOKEN.
	Token string

	// RoleID for AppRole authentication
	RoleID string

	// SecretID for AppRole authentication
	SecretID string
}

// Client wraps the Vault API client and provides secret retrieval methods.
type Client struct {
	client *vault.Client
	config *Config
}

// NewClient creates a new Vault client with the given configuration.
// It initializes the client but does not authenticate yet.
//
// Example:
//
//	client, err := vault.NewClient(&vault.Config{
//	    Address: "http://127.0.0.1:8200",
//	    Auth:    vault.AuthConfig{Method: "token", Token: "hvs.xxx"},
//	})
func NewClient(config *Config) (*Client, error) {
	address := config.Address
	if address == "" {
		address = os.Getenv(vault.EnvVaultAddress)
	}
	if address == "" {
		return nil, fmt.Errorf("vault address is required")
	}

	vaultConfig := vault.DefaultConfig()
	if vaultConfig.Error != nil {
		return nil, fmt.Errorf("failed to read vault environment: %w", vaultConfig.Error)
	}
	vaultConfig.Address = address

	if config.TLSSkipVerify {
		tlsConfig := &vault.TLSConfig{
			Insecure: true,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	return &Client{
		client: client,
		config: config,
	}, nil
}

// Authenticate authenticates to Vault using the configured auth method.
// This must be called before fetching secrets.
func (c *Client) Authenticate(ctx context.Context) error {
	switch c.config.Auth.Method {
	case "", "token":
		return c.authenticateWithToken()

	case "approle":
		return c.authenticateWithAppRole(ctx)

	default:
		return fmt.Errorf("unsupported auth method: %s", c.config.Auth.Method)
	}
}

// authenticateWithToken sets the token directly on the client. The vault
// client has already picked up VAULT_TOKEN, which is kept when no token is
// configured.
func (c *Client) authenticateWithToken() error {
	if c.config.Auth.Token != "" {
		c.client.SetToken(c.config.Auth.Token)
	}
	if c.client.Token() == "" {
		return fmt.Errorf("vault token is required for token authentication")
	}
	return nil
}

// authenticateWithAppRole authenticates using AppRole role_id and secret_id.
func (c *Client) authenticateWithAppRole(ctx context.Context) error {
	if c.config.Auth.RoleID == "" {
		return fmt.Errorf("role_id is required for approle authentication")
	}
	if c.config.Auth.SecretID == "" {
		return fmt.Errorf("secret_id is required for approle authentication")
	}

	data := map[string]interface{}{
		"role_id":   c.config.Auth.RoleID,
		"secret_id": c.config.Auth.SecretID,
	}

	resp, err := c.client.Logical().WriteWithContext(ctx, "auth/approle/login", data)
	if err != nil {
		return fmt.Errorf("approle login failed: %w", err)
	}

	if resp == nil || resp.Auth == nil {
		return fmt.Errorf("approle login returned no auth token")
	}

	c.client.SetToken(resp.Auth.ClientToken)
	return nil
}

// GetSecret fetches a secret from Vault's KV v2 secrets engine.
//
// Parameters:
//   - path: The full path to the secret (e.g., "secret/data/halo/deploy")
//   - key: The key within the secret data (e.g., "token")
//
// Note: For KV v2, the path must include "/data/" after the mount point.
// For example: "secret/data/halo/deploy" not "secret/halo/deploy"
func (c *Client) GetSecret(ctx context.Context, path, key string) (string, error) {
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret at %s: %w", path, err)
	}

	if secret == nil {
		return "", fmt.Errorf("secret not found at path: %s", path)
	}

	// For KV v2, secrets are nested under "data"
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected secret format at path: %s", path)
	}

	value, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %s not found in secret at path: %s", key, path)
	}

	valueStr, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("value for key %s is not a string at path: %s", key, path)
	}

	return valueStr, nil
}
