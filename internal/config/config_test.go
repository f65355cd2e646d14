package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Game struct {
		CodeLength int
		TimeLimit  time.Duration
	}

	Redis struct {
		Addrs []string
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
http:
  port: 9090
game:
  timelimit: 15s
`), 0o600))

	t.Setenv("REDIS_ADDRS", "localhost:6379")

	var c testConfig
	c.HTTP.Port = 8080
	c.Game.CodeLength = 6
	c.Game.TimeLimit = 20 * time.Second

	require.NoError(t, config.Load(file, &c))

	require.Equal(t, int32(9090), c.HTTP.Port, "file should override defaults")
	require.Equal(t, 15*time.Second, c.Game.TimeLimit, "durations should be parsed")
	require.Equal(t, 6, c.Game.CodeLength, "defaults should survive when absent from file")
	require.Equal(t, []string{"localhost:6379"}, c.Redis.Addrs, "env should fill keys absent from file")
}

func TestLoad_MissingFile(t *testing.T) {
	var c testConfig
	err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), &c)
	require.Error(t, err)
}
