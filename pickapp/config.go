package pickapp

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config holds the credentials and locations a pick needs. It is passed
// explicitly to every component, nothing reads process-wide settings.
type Config struct {
	ClientID     string `env:"DRIVEPICK_CLIENT_ID"`
	ClientSecret string `env:"DRIVEPICK_CLIENT_SECRET"`
	// APIKey is the developer key used by the browser picker.
	APIKey string `env:"DRIVEPICK_API_KEY"`
	// RedirectURL is the loopback address of the OAuth callback server.
	// A zero port picks a free one.
	RedirectURL string `env:"DRIVEPICK_REDIRECT_URL" envDefault:"http://localhost:8080"`
	// TokenPath is where the OAuth token is cached. Defaults to the user
	// config directory.
	TokenPath string `env:"DRIVEPICK_TOKEN_PATH"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if cfg.TokenPath == "" {
		path, err := defaultTokenPath()
		if err != nil {
			return Config{}, err
		}
		cfg.TokenPath = path
	}
	return cfg, nil
}

// Validate checks that cfg can authorize a user. needAPIKey is set for the
// browser dialog, which loads the Google Picker.
func (c Config) Validate(needAPIKey bool) error {
	if c.ClientID == "" {
		return fmt.Errorf("missing OAuth client ID, set DRIVEPICK_CLIENT_ID or use --client-id")
	}
	if c.TokenPath == "" {
		return fmt.Errorf("missing token path")
	}
	if needAPIKey && c.APIKey == "" {
		return fmt.Errorf("missing API key, set DRIVEPICK_API_KEY or use --api-key")
	}
	return nil
}

// defaultTokenPath returns the path to the token file.
func defaultTokenPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "drivepick", "token.json"), nil
}
