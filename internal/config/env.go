package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables overriding remote settings.
const (
	EnvRemoteURL      = "FIRMWARE_MIRROR_FTP_URL"
	EnvRemoteUser     = "FIRMWARE_MIRROR_FTP_USER"
	EnvRemotePassword = "FIRMWARE_MIRROR_FTP_PASSWORD"

	// DefaultEnvFilename is loaded from the working directory when present.
	DefaultEnvFilename = ".env"
)

// LoadEnvFile loads variables from a dotenv file into the process environment.
// Variables already set are kept. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = DefaultEnvFilename
	}

	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("load env file: %w", err)
	}

	return nil
}

// ApplyEnv fills empty remote settings from the environment.
func ApplyEnv(cfg *Config) {
	if cfg.Remote.URL == "" {
		cfg.Remote.URL = os.Getenv(EnvRemoteURL)
	}

	if cfg.Remote.Username == "" {
		cfg.Remote.Username = os.Getenv(EnvRemoteUser)
	}

	if cfg.Remote.Password == "" {
		cfg.Remote.Password = os.Getenv(EnvRemotePassword)
	}
}
