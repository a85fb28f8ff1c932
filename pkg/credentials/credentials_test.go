package credentials

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/jvreagan/static-pages-deploy/pkg/manifest"
)

// fakeSecrets serves canned Secrets Manager responses.
type fakeSecrets struct {
	secret *string
	err    error
	gotID  string
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.gotID = aws.ToString(in.SecretId)
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.secret}, nil
}

func envMap(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestTokenLiteral(t *testing.T) {
	m := NewManager(manifest.TokenConfig{Source: manifest.TokenSourceLiteral, Value: "  pat_literal\n"})
	token, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	if token != "pat_literal" {
		t.Errorf("Token() = %q, want trimmed literal", token)
	}
}

func TestTokenEnvironment(t *testing.T) {
	tests := []struct {
		name     string
		config   manifest.TokenConfig
		env      map[string]string
		want     string
		errorMsg string
	}{
		{
			name:   "default variable",
			config: manifest.TokenConfig{},
			env:    map[string]string{DefaultTokenEnv: "pat_default"},
			want:   "pat_default",
		},
		{
			name:   "named variable",
			config: manifest.TokenConfig{Source: manifest.TokenSourceEnvironment, Env: "CI_HALO_PAT"},
			env:    map[string]string{"CI_HALO_PAT": "pat_ci", DefaultTokenEnv: "ignored"},
			want:   "pat_ci",
		},
		{
			name:     "missing variable",
			config:   manifest.TokenConfig{Env: "CI_HALO_PAT"},
			env:      map[string]string{},
			errorMsg: "token not found in environment variable CI_HALO_PAT",
		},
		{
			name:     "blank variable",
			config:   manifest.TokenConfig{},
			env:      map[string]string{DefaultTokenEnv: "   "},
			errorMsg: "token from environment source is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.config)
			m.Getenv = envMap(tt.env)

			token, err := m.Token(context.Background())
			if tt.errorMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Token() error = %v, want it to contain %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Token() error: %v", err)
			}
			if token != tt.want {
				t.Errorf("Token() = %q, want %q", token, tt.want)
			}
		})
	}
}

func TestTokenSecretsManager(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		fake     *fakeSecrets
		want     string
		errorMsg string
	}{
		{
			name: "whole secret string",
			fake: &fakeSecrets{secret: aws.String("pat_raw")},
			want: "pat_raw",
		},
		{
			name: "json key",
			key:  "token",
			fake: &fakeSecrets{secret: aws.String(`{"token":"pat_json","user":"ci"}`)},
			want: "pat_json",
		},
		{
			name:     "missing json key",
			key:      "token",
			fake:     &fakeSecrets{secret: aws.String(`{"user":"ci"}`)},
			errorMsg: "key token not found",
		},
		{
			name:     "invalid json",
			key:      "token",
			fake:     &fakeSecrets{secret: aws.String(`pat_raw`)},
			errorMsg: "failed to parse secret JSON",
		},
		{
			name:     "binary secret",
			fake:     &fakeSecrets{},
			errorMsg: "has no string value",
		},
		{
			name:     "api error",
			fake:     &fakeSecrets{err: errors.New("AccessDeniedException")},
			errorMsg: "failed to retrieve secret halo/deploy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(manifest.TokenConfig{
				Source:         manifest.TokenSourceSecretsManager,
				SecretsManager: &manifest.SecretsManagerConfig{SecretID: "halo/deploy", Key: tt.key},
			})
			m.NewSecretsAPI = func(ctx context.Context, cfg *manifest.SecretsManagerConfig) (SecretsManagerAPI, error) {
				return tt.fake, nil
			}

			token, err := m.Token(context.Background())
			if tt.fake.gotID != "halo/deploy" {
				t.Errorf("SecretId = %q, want halo/deploy", tt.fake.gotID)
			}
			if tt.errorMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Token() error = %v, want it to contain %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Token() error: %v", err)
			}
			if token != tt.want {
				t.Errorf("Token() = %q, want %q", token, tt.want)
			}
		})
	}
}

func TestTokenVault(t *testing.T) {
	t.Setenv("VAULT_TOKEN", "")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "root-token" {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}
		if r.URL.Path != "/v1/secret/data/halo/deploy" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errors":[]}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"data":{"token":"pat_vault","pat":"pat_custom"}}}`))
	}))
	defer srv.Close()

	tests := []struct {
		name     string
		vault    *manifest.VaultConfig
		want     string
		errorMsg string
	}{
		{
			name:  "default key",
			vault: &manifest.VaultConfig{Address: srv.URL, Token: "root-token", Path: "secret/data/halo/deploy"},
			want:  "pat_vault",
		},
		{
			name:  "custom key",
			vault: &manifest.VaultConfig{Address: srv.URL, Token: "root-token", Path: "secret/data/halo/deploy", Key: "pat"},
			want:  "pat_custom",
		},
		{
			name:     "missing vault token",
			vault:    &manifest.VaultConfig{Address: srv.URL, Path: "secret/data/halo/deploy"},
			errorMsg: "failed to authenticate to vault",
		},
		{
			name:     "permission denied",
			vault:    &manifest.VaultConfig{Address: srv.URL, Token: "wrong", Path: "secret/data/halo/deploy"},
			errorMsg: "failed to read secret",
		},
		{
			name:     "no path",
			vault:    &manifest.VaultConfig{Address: srv.URL, Token: "root-token"},
			errorMsg: "vault path is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(manifest.TokenConfig{Source: manifest.TokenSourceVault, Vault: tt.vault})
			token, err := m.Token(context.Background())
			if tt.errorMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Token() error = %v, want it to contain %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Token() error: %v", err)
			}
			if token != tt.want {
				t.Errorf("Token() = %q, want %q", token, tt.want)
			}
		})
	}
}

func TestTokenUnknownSource(t *testing.T) {
	m := NewManager(manifest.TokenConfig{Source: "keychain"})
	if _, err := m.Token(context.Background()); err == nil || !strings.Contains(err.Error(), "unknown token source") {
		t.Errorf("Expected unknown source error, got %v", err)
	}
}
