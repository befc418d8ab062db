package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestMustLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		// Given: a config that only sets the secret
		path := writeConfig(t, "jwt:\n  secret: s3cret\n")

		// When: it is loaded
		conf := MustLoad(path)

		// Then: everything else falls back to defaults
		assert.Equal(t, "info", conf.LogLevel)
		assert.Equal(t, "9090", conf.HTTPPort)
		assert.Equal(t, "9091", conf.SocketPort)
		assert.Equal(t, "localhost:6379", conf.Redis.GetRedisAddr())
		assert.Equal(t, int32(10), conf.Postgres.MaxConns)
		assert.Equal(t, "s3cret", conf.JWT.Secret)
		assert.Equal(t, 24*time.Hour, conf.JWT.TTL)
		assert.Equal(t, "ws://localhost:9091/game/ws", conf.Client.WSURL)
		assert.Empty(t, conf.Client.Strategy)
	})

	t.Run("Environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "http-port: \"8000\"\nclient:\n  strategy: random\n")
		t.Setenv("HTTP_PORT", "8080")

		conf := MustLoad(path)

		assert.Equal(t, "8080", conf.HTTPPort)
		assert.Equal(t, "random", conf.Client.Strategy)
	})

	t.Run("Missing file panics", func(t *testing.T) {
		assert.Panics(t, func() {
			MustLoad(filepath.Join(t.TempDir(), "absent.yml"))
		})
	})
}
