package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// LoadDotEnv copies KEY=VALUE pairs from path into the process environment.
// A missing file is not an error. Without override, variables that are
// already set keep their value. Keys are upper-cased.
func LoadDotEnv(path string, override bool) (int, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to stat env file %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return 0, fmt.Errorf("failed to read env file %s: %w", path, err)
	}

	loaded := 0
	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if _, exists := os.LookupEnv(name); exists && !override {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return loaded, fmt.Errorf("failed to set %s from %s: %w", name, path, err)
		}
		loaded++
	}
	return loaded, nil
}
