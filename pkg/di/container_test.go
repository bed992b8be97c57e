package di

import (
	"context"
	"path/filepath"
	"testing"

	"stock-chat/backend/pkg/config"
	"stock-chat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	t.Setenv("DB_DRIVER", driver)
	t.Setenv("REDIS_ENABLED", "false")
	return config.Load()
}

func TestNewMemoryContainer(t *testing.T) {
	c, err := New(context.Background(), loadConfig(t, config.DriverMemory), logger.NewNop())
	require.NoError(t, err)

	assert.Nil(t, c.DB)
	assert.Nil(t, c.Redis)
	require.NotNil(t, c.Dispatcher)
	require.NotNil(t, c.WSHandler)

	ctx := context.Background()
	id, err := c.Sessions.Connect("alice")
	require.NoError(t, err)
	require.NoError(t, c.Sessions.Join(ctx, id, "AAPL"))

	msg, err := c.Dispatcher.Publish(ctx, id, "AAPL", "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Seq)

	c.Health.RunChecks(ctx)
	assert.True(t, c.Health.IsSystemHealthy())

	require.NoError(t, c.Close(ctx))
	assert.Equal(t, 0, c.Sessions.Count())
}

func TestNewSQLiteContainer(t *testing.T) {
	cfg := loadConfig(t, config.DriverSQLite)
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "chat.db")

	c, err := New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	require.NotNil(t, c.DB)

	ctx := context.Background()
	id, err := c.Sessions.Connect("bob")
	require.NoError(t, err)
	_, err = c.Dispatcher.Publish(ctx, id, "TSLA", "persisted")
	require.NoError(t, err)

	history, err := c.Dispatcher.History(ctx, "TSLA", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "persisted", history[0].Content)

	require.NoError(t, c.Close(ctx))
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(context.Background(), loadConfig(t, "cassandra"), logger.NewNop())
	assert.Error(t, err)
}
