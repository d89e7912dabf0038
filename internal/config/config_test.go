package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChannelManager/internal/domain"
)

// clearEnv isolates a test from the caller's environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{configPathEnv, telegramTokenEnv, searxngURLEnv, logLevelEnv, indexBackendEnv} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, workspace, content string) {
	t.Helper()
	path := filepath.Join(workspace, "tgcm", fileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Index.Backend)
	assert.Equal(t, 0.4, cfg.Dedup.Threshold)
	assert.Equal(t, 2, cfg.Dedup.MinMatches)
	assert.Equal(t, "https://api.telegram.org", cfg.Telegram.APIURL)
	assert.Equal(t, 20, cfg.History.PageLimit)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	clearEnv(t)
	ws := t.TempDir()
	writeConfig(t, ws, `
logging:
  level: debug
telegram:
  botToken: from-file
dedup:
  threshold: 0.5
  extraStopwords: [weekly]
index:
  backend: sqlite
history:
  pageLimit: 9
`)
	t.Setenv(telegramTokenEnv, "from-env")
	t.Setenv(searxngURLEnv, "http://searx.local")

	cfg, err := Load(ws)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "from-env", cfg.Telegram.BotToken)
	assert.Equal(t, "http://searx.local", cfg.Search.URL)
	assert.Equal(t, 0.5, cfg.Dedup.Threshold)
	assert.Equal(t, 2, cfg.Dedup.MinMatches, "unset keys keep defaults")
	assert.Equal(t, []string{"weekly"}, cfg.Dedup.Engine().ExtraStopwords)
	assert.Equal(t, "sqlite", cfg.Index.Backend)
	assert.Equal(t, 9, cfg.History.PageLimit)
}

func TestLoadHonoursConfigPathEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  url: http://custom\n"), 0o600))
	t.Setenv(configPathEnv, path)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "http://custom", cfg.Search.URL)
}

func TestLoadCorruptFileFallsBack(t *testing.T) {
	clearEnv(t)
	ws := t.TempDir()
	writeConfig(t, ws, "logging: [unterminated")
	t.Setenv(logLevelEnv, "warn")

	cfg, err := Load(ws)
	require.ErrorIs(t, err, domain.ErrCorrupt)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Index.Backend)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
	}{
		{name: "backend", content: "index:\n  backend: postgres\n"},
		{name: "level", content: "logging:\n  level: loud\n"},
		{name: "threshold", content: "dedup:\n  threshold: 1.5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := t.TempDir()
			writeConfig(t, ws, tt.content)
			_, err := Load(ws)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestResolveBotTokenOrder(t *testing.T) {
	clearEnv(t)
	ws := t.TempDir()

	token, source := ResolveBotToken("", ws)
	assert.Empty(t, token)
	assert.Empty(t, source)

	writeConfig(t, ws, "telegram:\n  botToken: file-token\n")
	token, source = ResolveBotToken("", ws)
	assert.Equal(t, "file-token", token)
	assert.Equal(t, SourceFile, source)

	t.Setenv(telegramTokenEnv, "env-token")
	token, source = ResolveBotToken("", ws)
	assert.Equal(t, "env-token", token)
	assert.Equal(t, SourceEnv, source)

	require.NoError(t, os.WriteFile(filepath.Join(ws, dotenvName), []byte("# local\nTELEGRAM_BOT_TOKEN=\"dotenv-token\"\n"), 0o600))
	token, source = ResolveBotToken("", ws)
	assert.Equal(t, "dotenv-token", token)
	assert.Equal(t, SourceDotenv, source)

	token, source = ResolveBotToken("flag-token", ws)
	assert.Equal(t, "flag-token", token)
	assert.Equal(t, SourceFlag, source)
}

func TestSetGetList(t *testing.T) {
	clearEnv(t)
	ws := t.TempDir()

	settings, err := List(ws)
	require.NoError(t, err)
	assert.Empty(t, settings)

	require.NoError(t, Set(ws, "bot-token", "123456:ABCDEF"))
	require.NoError(t, Set(ws, "searxng-url", "http://searx.local"))
	require.NoError(t, Set(ws, "index-backend", "sqlite"))

	value, err := Get(ws, "bot-token")
	require.NoError(t, err)
	assert.Equal(t, "123456:ABCDEF", value)

	value, err = Get(ws, "log-level")
	require.NoError(t, err)
	assert.Empty(t, value)

	settings, err = List(ws)
	require.NoError(t, err)
	assert.Equal(t, []Setting{
		{Key: "bot-token", Value: "123456:ABCDEF"},
		{Key: "searxng-url", Value: "http://searx.local"},
		{Key: "index-backend", Value: "sqlite"},
	}, settings)

	info, err := os.Stat(Path(ws))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := Load(ws)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Index.Backend)
	assert.Equal(t, "123456:ABCDEF", cfg.Telegram.BotToken)
}

func TestSetRejectsInvalid(t *testing.T) {
	clearEnv(t)
	ws := t.TempDir()

	require.ErrorIs(t, Set(ws, "colour", "blue"), domain.ErrInvalidInput)
	require.ErrorIs(t, Set(ws, "index-backend", "postgres"), domain.ErrInvalidInput)
	require.ErrorIs(t, Set(ws, "history-page-limit", "0"), domain.ErrInvalidInput)

	_, err := Get(ws, "colour")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, statErr := os.Stat(Path(ws))
	assert.True(t, os.IsNotExist(statErr), "rejected values must not create the file")
}

func TestMask(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1234...WXYZ", Mask("1234567:ABCDWXYZ"))
	assert.Equal(t, "****", Mask("abcd"))
	assert.Equal(t, "", Mask(""))
}
