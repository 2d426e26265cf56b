package pickapp

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("environment", func(t *testing.T) {
		t.Setenv("DRIVEPICK_CLIENT_ID", "client-id")
		t.Setenv("DRIVEPICK_CLIENT_SECRET", "secret")
		t.Setenv("DRIVEPICK_API_KEY", "api-key")
		t.Setenv("DRIVEPICK_TOKEN_PATH", "/tmp/token.json")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, Config{
			ClientID:     "client-id",
			ClientSecret: "secret",
			APIKey:       "api-key",
			RedirectURL:  "http://localhost:8080",
			TokenPath:    "/tmp/token.json",
		}, cfg)
	})
	t.Run("default token path", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", dir)
		t.Setenv("DRIVEPICK_TOKEN_PATH", "")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "drivepick", "token.json"), cfg.TokenPath)
	})
}

func TestConfigValidate(t *testing.T) {
	valid := Config{ClientID: "client-id", APIKey: "api-key", TokenPath: "/tmp/token.json"}
	assert.NoError(t, valid.Validate(true))

	noKey := valid
	noKey.APIKey = ""
	assert.NoError(t, noKey.Validate(false))
	assert.Error(t, noKey.Validate(true))

	noClient := valid
	noClient.ClientID = ""
	assert.Error(t, noClient.Validate(false))

	noPath := valid
	noPath.TokenPath = ""
	assert.Error(t, noPath.Validate(false))
}
