package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	localPath := filepath.Join(dir, ".env.local")
	require.NoError(t, os.WriteFile(envPath, []byte("DISPATCH_TEST_SHARED=from-env\nDISPATCH_TEST_SHELL=from-env\n"), 0o600))
	require.NoError(t, os.WriteFile(localPath, []byte("DISPATCH_TEST_SHARED=from-local\n"), 0o600))

	t.Setenv("DISPATCH_TEST_SHELL", "from-shell")
	t.Setenv("DISPATCH_TEST_SHARED", "")
	require.NoError(t, os.Unsetenv("DISPATCH_TEST_SHARED"))

	loaded, err := LoadDotEnv(envPath, false)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded, "shell values are kept without override")
	assert.Equal(t, "from-env", os.Getenv("DISPATCH_TEST_SHARED"))
	assert.Equal(t, "from-shell", os.Getenv("DISPATCH_TEST_SHELL"))

	loaded, err = LoadDotEnv(localPath, true)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	assert.Equal(t, "from-local", os.Getenv("DISPATCH_TEST_SHARED"))
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	t.Parallel()

	loaded, err := LoadDotEnv(filepath.Join(t.TempDir(), ".env"), false)

	require.NoError(t, err)
	assert.Zero(t, loaded)
}
