package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authcore"
)

const testHSKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

func setHS256(t *testing.T) {
	t.Helper()
	t.Setenv("AUTHCORE_JWT_SIGNING_METHOD", "hs256")
	t.Setenv("AUTHCORE_JWT_PRIVATE_KEY", testHSKey)
}

func TestLoadDefaultsFromEnvironment(t *testing.T) {
	setHS256(t)

	s, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, ":8080", s.HTTPAddr)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, "json", s.LogFormat)
	assert.Equal(t, []byte("0123456789abcdef0123456789abcdef"), s.Core.JWT.PrivateKey)
	assert.Equal(t, "hs256", s.Core.JWT.SigningMethod)
	assert.Equal(t, 15*time.Minute, s.Core.JWT.AccessTTL)
	assert.True(t, s.Core.Tokens.RevokeFamilyOnReuse)
	assert.Equal(t, 6, s.Core.Codes.CodeLength)
	assert.Equal(t, authcore.LinkingDisabled, s.Core.AccountLinking.Strategy)
	assert.Equal(t, 587, s.SMTP.Port)
	assert.Equal(t, time.Second, s.Worker.PollInterval)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	setHS256(t)
	t.Setenv("AUTHCORE_JWT_ACCESS_TTL", "5m")
	t.Setenv("AUTHCORE_TOKENS_REVOKE_FAMILY_ON_REUSE", "false")
	t.Setenv("AUTHCORE_CODES_LENGTH", "8")
	t.Setenv("AUTHCORE_ACCOUNT_LINKING_STRATEGY", "automatic")
	t.Setenv("AUTHCORE_ACCOUNT_LINKING_MULTIPLE_CANDIDATES", "new_user")
	t.Setenv("AUTHCORE_ACCOUNT_LINKING_ALLOWED_KINDS", "email,phone")
	t.Setenv("AUTHCORE_MAGIC_LINK_ENABLED", "true")
	t.Setenv("AUTHCORE_MAGIC_LINK_BASE_URL", "https://app.example.com/magic")
	t.Setenv("AUTHCORE_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("AUTHCORE_LOG_FORMAT", "text")

	s, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, s.Core.JWT.AccessTTL)
	assert.False(t, s.Core.Tokens.RevokeFamilyOnReuse)
	assert.Equal(t, 8, s.Core.Codes.CodeLength)
	assert.Equal(t, authcore.LinkingAutomatic, s.Core.AccountLinking.Strategy)
	assert.Equal(t, authcore.FallbackNewUser, s.Core.AccountLinking.MultipleCandidates)
	assert.Equal(t, []authcore.IdentifierKind{authcore.IdentifierEmail, authcore.IdentifierPhone}, s.Core.AccountLinking.AllowedKinds)
	assert.True(t, s.Core.MagicLink.Enabled)
	assert.Equal(t, "redis://localhost:6379/0", s.RedisURL)
	assert.Equal(t, "text", s.LogFormat)
}

func TestLoadReadsFileAndEnvFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "authcore.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
http:
  addr: ":9090"
jwt:
  signing_method: hs256
  issuer: acme
verification:
  max_attempts: 5
`), 0o600))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("AUTHCORE_JWT_PRIVATE_KEY="+testHSKey+"\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("AUTHCORE_JWT_PRIVATE_KEY") })

	s, err := Load(Options{File: cfgFile, EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, ":9090", s.HTTPAddr)
	assert.Equal(t, "acme", s.Core.JWT.Issuer)
	assert.Equal(t, 5, s.Core.Verification.MaxAttempts)
}

func TestLoadMissingOptionalFiles(t *testing.T) {
	setHS256(t)
	dir := t.TempDir()

	_, err := Load(Options{File: filepath.Join(dir, "absent.yaml"), EnvFile: filepath.Join(dir, ".env")})
	require.NoError(t, err)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing key", map[string]string{"AUTHCORE_JWT_SIGNING_METHOD": "hs256"}},
		{"ed25519 without public key", map[string]string{"AUTHCORE_JWT_PRIVATE_KEY": testHSKey}},
		{"bad signing method", map[string]string{"AUTHCORE_JWT_SIGNING_METHOD": "rs256", "AUTHCORE_JWT_PRIVATE_KEY": testHSKey}},
		{"bad log level", map[string]string{"AUTHCORE_LOG_LEVEL": "verbose"}},
		{"code too short", map[string]string{"AUTHCORE_CODES_LENGTH": "3"}},
		{"bad linking strategy", map[string]string{"AUTHCORE_ACCOUNT_LINKING_STRATEGY": "always"}},
		{"bad linking kind", map[string]string{"AUTHCORE_ACCOUNT_LINKING_ALLOWED_KINDS": "username"}},
		{"refresh shorter than access", map[string]string{"AUTHCORE_JWT_REFRESH_TTL": "1m"}},
		{"key not base64", map[string]string{"AUTHCORE_JWT_PRIVATE_KEY": "not base64!"}},
		{"magic link without base url", map[string]string{"AUTHCORE_MAGIC_LINK_ENABLED": "true"}},
		{"bad redis url", map[string]string{"AUTHCORE_REDIS_URL": "::"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := tc.env["AUTHCORE_JWT_PRIVATE_KEY"]; !ok && tc.name != "missing key" {
				setHS256(t)
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(Options{})
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Settings{LogLevel: "warn", LogFormat: "json"}, &buf)
	log.Info("hidden")
	log.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)

	buf.Reset()
	NewLogger(Settings{LogLevel: "debug", LogFormat: "text"}, &buf).Debug("dbg")
	assert.Contains(t, buf.String(), "msg=dbg")
}

func TestDatabaseURLSkipsEngineValidation(t *testing.T) {
	_, err := DatabaseURL(Options{})
	assert.Error(t, err)

	t.Setenv("AUTHCORE_DATABASE_URL", "postgres://authcore@localhost/authcore")
	dsn, err := DatabaseURL(Options{})
	require.NoError(t, err)
	assert.Equal(t, "postgres://authcore@localhost/authcore", dsn)
}
