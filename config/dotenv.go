package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads the first of paths and ".env" in the working directory
// that exist. Variables already set in the environment are kept.
func LoadDotEnv(paths ...string) error {
	for _, path := range append(paths, ".env") {
		if path == "" {
			continue
		}

		err := godotenv.Load(path)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}

	return nil
}

// LoadDotEnvForConfig prefers the .env file next to configPath.
func LoadDotEnvForConfig(configPath string) error {
	if configPath == "" {
		return LoadDotEnv()
	}

	abs, err := filepath.Abs(configPath)
	if err != nil {
		return LoadDotEnv()
	}

	return LoadDotEnv(filepath.Join(filepath.Dir(abs), ".env"))
}
