package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvFile reads path and sets environment variables for each "KEY=value" line,
// overriding values already present. A missing file is not an error.
// Path is cleaned with filepath.Clean to avoid traversal if path is user-influenced.
func LoadEnvFile(path string) error {
	path = filepath.Clean(path)
	vars, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for k, v := range vars {
		if k == "" {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}
	return nil
}
