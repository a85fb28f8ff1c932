// Package logging provides the process-wide structured logger.
// Output goes to stderr so it never mixes with command results on stdout,
// and anything that may carry a credential is redacted first.
package logging

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// DebugEnv enables debug logging when set to "true".
const DebugEnv = "STATIC_PAGES_DEPLOY_DEBUG"

var (
	// Default logger instance
	logger *slog.Logger

	// Shared level so Configure can change verbosity without a new handler
	level = new(slog.LevelVar)

	// Patterns for detecting sensitive data
	sensitivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		regexp.MustCompile(`(?i)Basic\s+[A-Za-z0-9+/]+=*`),
		regexp.MustCompile(`(?i)(password|secret|token|key|auth)[\s]*[:=][\s]*[^\s]+`),
		regexp.MustCompile(`hv[sbr]\.[A-Za-z0-9_\-]{20,}`), // Vault tokens
		regexp.MustCompile(`AKIA[0-9A-Z]{16}`),             // AWS Access Key
	}

	sensitiveKeys = map[string]bool{
		"password":          true,
		"secret":            true,
		"token":             true,
		"key":               true,
		"auth":              true,
		"authorization":     true,
		"credential":        true,
		"access_key_id":     true,
		"secret_access_key": true,
		"secret_id":         true,
		"vault_token":       true,
		"api_key":           true,
	}
)

func init() {
	level.Set(slog.LevelWarn)
	if os.Getenv(DebugEnv) == "true" {
		level.Set(slog.LevelDebug)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Configure points the logger at w and sets verbosity.
// verbose lowers the level to debug; otherwise the level is warn unless the
// debug environment variable is set.
func Configure(w io.Writer, verbose bool) {
	switch {
	case verbose, os.Getenv(DebugEnv) == "true":
		level.Set(slog.LevelDebug)
	default:
		level.Set(slog.LevelWarn)
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// SanitizeString removes or masks sensitive data from strings
func SanitizeString(s string) string {
	sanitized := s
	for _, pattern := range sensitivePatterns {
		sanitized = pattern.ReplaceAllStringFunc(sanitized, func(match string) string {
			// Keep the key part before the value
			parts := strings.SplitN(match, ":", 2)
			if len(parts) == 2 {
				return parts[0] + ": [REDACTED]"
			}
			parts = strings.SplitN(match, "=", 2)
			if len(parts) == 2 && !strings.HasSuffix(match, "=") {
				return parts[0] + "=[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return sanitized
}

// SanitizeMap creates a sanitized copy of a map, redacting sensitive keys
func SanitizeMap(m map[string]any) map[string]any {
	sanitized := make(map[string]any, len(m))
	for k, v := range m {
		if sensitiveKeys[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
		} else if strVal, ok := v.(string); ok {
			sanitized[k] = SanitizeString(strVal)
		} else {
			sanitized[k] = v
		}
	}
	return sanitized
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	logger.Debug(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	logger.Warn(msg, args...)
}

// DebugFields logs at debug level with fields passed through SanitizeMap.
func DebugFields(msg string, fields map[string]any, args ...any) {
	logger.Debug(msg, withFields(fields, args)...)
}

// WarnFields logs a warning with fields passed through SanitizeMap.
func WarnFields(msg string, fields map[string]any, args ...any) {
	logger.Warn(msg, withFields(fields, args)...)
}

func withFields(fields map[string]any, args []any) []any {
	sanitized := SanitizeMap(fields)
	allArgs := make([]any, 0, len(args)+len(sanitized)*2)
	allArgs = append(allArgs, args...)
	for k, v := range sanitized {
		allArgs = append(allArgs, k, v)
	}
	return allArgs
}
