package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InsiderPie/http-reload-proxy/internal/config"
)

func TestRootHasCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["init"])
	assert.True(t, names["version"])
}

func TestInitWritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(cwd) })

	require.NoError(t, runInit(initCmd, nil))

	path := filepath.Join(dir, defaultConfigFile)
	_, err = os.Stat(path)
	require.NoError(t, err)

	// The starter file round-trips through the config loader.
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	watchRoot := filepath.Join(dir, "public")
	require.NoError(t, os.Mkdir(watchRoot, 0755))
	viper.Set("watch.root", watchRoot)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Upstream.Host)
	assert.Equal(t, 3000, cfg.Upstream.Port)
	assert.Equal(t, 8080, cfg.Proxy.Port)
	assert.Equal(t, 8090, cfg.Notify.Port)
	assert.Equal(t, 100, cfg.Reload.DelayMS)
}

func TestInitRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(cwd) })

	require.NoError(t, os.WriteFile(defaultConfigFile, []byte("existing"), 0644))

	initForce = false
	err = runInit(initCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
