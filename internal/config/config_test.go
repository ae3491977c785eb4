package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, "passphrase", cfg.CipherMode)
	assert.Equal(t, "https://ipqualityscore.com/api/json/url", cfg.ReputationAPIURL)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "safechat.yaml")
	require.NoError(t, os.WriteFile(file, []byte("PORT: \"9000\"\nALLOWED_ORIGIN: https://file.example\n"), 0o600))
	t.Setenv("ALLOWED_ORIGIN", "https://env.example")

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "https://env.example", cfg.AllowedOrigin)
}

func TestValidate(t *testing.T) {
	cfg := &Config{AllowedOrigin: "http://localhost"}
	assert.Error(t, cfg.ValidateProxy())

	cfg.ReputationAPIKey = "key"
	assert.NoError(t, cfg.ValidateProxy())
	assert.Error(t, cfg.ValidateServe())

	cfg.CipherKey = "secret"
	cfg.CookieSecret = "cookie"
	assert.NoError(t, cfg.ValidateServe())

	remote := &Config{ProxyURL: "http://proxy/check-url", CipherKey: "k", CookieSecret: "c"}
	assert.NoError(t, remote.ValidateServe())
}
