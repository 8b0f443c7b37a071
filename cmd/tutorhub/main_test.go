package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", "")
	t.Setenv("APP_ENV", "development")
	t.Setenv("LLM_PROVIDER", "mock")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_DISABLED", "true")
	t.Setenv("LOG_LEVEL", "error")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRouteCommand(t *testing.T) {
	setTestEnv(t)

	tests := []struct {
		name    string
		args    []string
		handler string
		source  string
	}{
		{"lexical subject", []string{"route", "can you check my algebra homework?"}, "subject:math", "lexical"},
		{"declared subject", []string{"route", "--subject", "Physics", "what should I revise?"}, "subject:physics", "declared"},
		{"stress wins", []string{"route", "--subject", "math", "I am so stressed about tomorrow"}, "support", "stress"},
		{"nothing matches", []string{"route", "hello there"}, "general", "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.NoError(t, err)

			var got routeOutput
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			assert.Equal(t, tt.handler, got.Handler)
			assert.Equal(t, tt.source, got.Source)
		})
	}
}

func TestRouteCommand_RequiresMessage(t *testing.T) {
	setTestEnv(t)

	_, err := execute(t, "route")
	require.Error(t, err)
}

func TestJobCommands_InMemory(t *testing.T) {
	setTestEnv(t)

	out, err := execute(t, "job", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "daily_practice")
	assert.Contains(t, out, "inactivity_sweep")

	out, err = execute(t, "job", "run", "daily_practice")
	require.NoError(t, err)
	assert.Contains(t, out, "job daily_practice completed")

	_, err = execute(t, "job", "run", "nope")
	require.Error(t, err)
}

func TestMigrate_RequiresDatabase(t *testing.T) {
	setTestEnv(t)

	_, err := execute(t, "migrate", "status")
	require.ErrorIs(t, err, errNoDatabase)
}

func TestNewApp_HealthWithoutBackends(t *testing.T) {
	setTestEnv(t)

	root := newRootCmd()
	cfg, err := loadConfig(root)
	require.NoError(t, err)
	appLog, slogger := setupLogger(cfg)

	a, err := newApp(context.Background(), cfg, appLog, slogger)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	status := a.healthChecker().Check(context.Background())
	assert.True(t, status.Healthy)
	assert.False(t, status.Degraded)
	assert.Contains(t, status.Checks, "model")
	assert.NotNil(t, a.httpServer().Handler())
}

func TestConnectDatabase_InvalidURLIsNotRetried(t *testing.T) {
	setTestEnv(t)
	cfg, err := loadConfig(newRootCmd())
	require.NoError(t, err)
	cfg.Database.URL = "postgres://user@localhost:notaport/db"
	cfg.Database.ConnectRetries = 5
	_, slogger := setupLogger(cfg)

	start := time.Now()
	_, err = connectDatabase(context.Background(), cfg, slogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse database URL")
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}
