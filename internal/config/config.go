package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ChannelManager/internal/dedup"
	"ChannelManager/internal/domain"
)

const (
	configPathEnv    = "TGCM_CONFIG"
	telegramTokenEnv = "TELEGRAM_BOT_TOKEN"
	searxngURLEnv    = "SEARXNG_URL"
	logLevelEnv      = "TGCM_LOG_LEVEL"
	indexBackendEnv  = "TGCM_INDEX_BACKEND"

	fileName   = "config.yaml"
	dotenvName = ".env"
)

// Config holds settings shared by every command.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Telegram TelegramConfig `yaml:"telegram,omitempty"`
	Search   SearchConfig   `yaml:"search,omitempty"`
	Dedup    DedupConfig    `yaml:"dedup,omitempty"`
	Index    IndexConfig    `yaml:"index,omitempty"`
	History  HistoryConfig  `yaml:"history,omitempty"`
}

// LoggingConfig selects the log level (debug, info, warn, error).
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

// TelegramConfig wires the Bot API.
type TelegramConfig struct {
	BotToken string `yaml:"botToken,omitempty"`
	APIURL   string `yaml:"apiUrl,omitempty"`
}

// SearchConfig points the scout role at a SearXNG instance.
type SearchConfig struct {
	URL string `yaml:"url,omitempty"`
}

// DedupConfig tunes the duplicate matcher.
type DedupConfig struct {
	Threshold      float64  `yaml:"threshold,omitempty"`
	MinMatches     int      `yaml:"minMatches,omitempty"`
	StemLength     int      `yaml:"stemLength,omitempty"`
	MinTokenLength int      `yaml:"minTokenLength,omitempty"`
	ExtraStopwords []string `yaml:"extraStopwords,omitempty"`
}

// Engine converts the section into the matcher configuration.
func (d DedupConfig) Engine() dedup.Config {
	return dedup.Config{
		Threshold:      d.Threshold,
		MinMatches:     d.MinMatches,
		StemLength:     d.StemLength,
		MinTokenLength: d.MinTokenLength,
		ExtraStopwords: d.ExtraStopwords,
	}
}

// IndexConfig selects the dedup index backend (json or sqlite).
type IndexConfig struct {
	Backend string `yaml:"backend,omitempty"`
}

// HistoryConfig tunes the t.me preview crawler used by rebuilds.
type HistoryConfig struct {
	PageLimit         int     `yaml:"pageLimit,omitempty"`
	MinPageSize       int     `yaml:"minPageSize,omitempty"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`
}

// Path returns the config file location for a workspace.
func Path(workspace string) string {
	if path := os.Getenv(configPathEnv); path != "" {
		return path
	}
	return filepath.Join(workspace, "tgcm", fileName)
}

// Load reads the workspace config (if present) and applies environment
// overrides. When the file cannot be parsed the returned config still holds
// defaults and overrides, and the error wraps domain.ErrCorrupt.
func Load(workspace string) (Config, error) {
	cfg := defaultConfig()

	fileCfg, err := readFile(Path(workspace))
	if err == nil {
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()

	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks enumerated values and the dedup section.
func (c Config) Validate() error {
	if err := c.Dedup.Engine().Validate(); err != nil {
		return fmt.Errorf("config: %v: %w", err, domain.ErrInvalidInput)
	}
	if err := validateBackend(c.Index.Backend); err != nil {
		return err
	}
	return validateLevel(c.Logging.Level)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(searxngURLEnv); v != "" {
		c.Search.URL = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(indexBackendEnv); v != "" {
		c.Index.Backend = v
	}
}

func readFile(path string) (Config, error) {
	var fileCfg Config

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileCfg, nil
	}
	if err != nil {
		return fileCfg, fmt.Errorf("config: cannot read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("config: cannot parse %s: %v: %w", path, err, domain.ErrCorrupt)
	}
	return fileCfg, nil
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Telegram.BotToken != "" {
		base.Telegram.BotToken = override.Telegram.BotToken
	}
	if override.Telegram.APIURL != "" {
		base.Telegram.APIURL = override.Telegram.APIURL
	}

	if override.Search.URL != "" {
		base.Search.URL = override.Search.URL
	}

	if override.Dedup.Threshold != 0 {
		base.Dedup.Threshold = override.Dedup.Threshold
	}
	if override.Dedup.MinMatches != 0 {
		base.Dedup.MinMatches = override.Dedup.MinMatches
	}
	if override.Dedup.StemLength != 0 {
		base.Dedup.StemLength = override.Dedup.StemLength
	}
	if override.Dedup.MinTokenLength != 0 {
		base.Dedup.MinTokenLength = override.Dedup.MinTokenLength
	}
	if len(override.Dedup.ExtraStopwords) > 0 {
		base.Dedup.ExtraStopwords = override.Dedup.ExtraStopwords
	}

	if override.Index.Backend != "" {
		base.Index.Backend = override.Index.Backend
	}

	if override.History.PageLimit != 0 {
		base.History.PageLimit = override.History.PageLimit
	}
	if override.History.MinPageSize != 0 {
		base.History.MinPageSize = override.History.MinPageSize
	}
	if override.History.RequestsPerSecond != 0 {
		base.History.RequestsPerSecond = override.History.RequestsPerSecond
	}

	return base
}

func defaultConfig() Config {
	engine := dedup.DefaultConfig()
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Telegram: TelegramConfig{APIURL: "https://api.telegram.org"},
		Dedup: DedupConfig{
			Threshold:      engine.Threshold,
			MinMatches:     engine.MinMatches,
			StemLength:     engine.StemLength,
			MinTokenLength: engine.MinTokenLength,
		},
		Index:   IndexConfig{Backend: "json"},
		History: HistoryConfig{PageLimit: 20, MinPageSize: 10, RequestsPerSecond: 1},
	}
}

func validateBackend(v string) error {
	switch v {
	case "json", "sqlite":
		return nil
	}
	return fmt.Errorf("config: unknown index backend %q (expected json or sqlite): %w", v, domain.ErrInvalidInput)
}

func validateLevel(v string) error {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("config: unknown log level %q (expected debug, info, warn or error): %w", v, domain.ErrInvalidInput)
}

// Token sources reported by ResolveBotToken.
const (
	SourceFlag   = "--bot-token flag"
	SourceDotenv = ".env"
	SourceEnv    = telegramTokenEnv + " env"
	SourceFile   = "config file"
)

// ResolveBotToken finds the bot token in order: flag, workspace .env,
// environment, config file. It returns the token and the source that won,
// or two empty strings.
func ResolveBotToken(flag, workspace string) (string, string) {
	if flag != "" {
		return flag, SourceFlag
	}
	if v := readDotenv(workspace)[telegramTokenEnv]; v != "" {
		return v, SourceDotenv
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		return v, SourceEnv
	}
	if fileCfg, err := readFile(Path(workspace)); err == nil && fileCfg.Telegram.BotToken != "" {
		return fileCfg.Telegram.BotToken, SourceFile
	}
	return "", ""
}

func readDotenv(workspace string) map[string]string {
	values, err := godotenv.Read(filepath.Join(workspace, dotenvName))
	if err != nil {
		return map[string]string{}
	}
	return values
}

// Setting is one user-editable key and its value in the config file.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type settingField struct {
	get      func(c *Config) string
	set      func(c *Config, v string)
	validate func(v string) error
}

var settings = map[string]settingField{
	"bot-token": {
		get: func(c *Config) string { return c.Telegram.BotToken },
		set: func(c *Config, v string) { c.Telegram.BotToken = v },
	},
	"searxng-url": {
		get: func(c *Config) string { return c.Search.URL },
		set: func(c *Config, v string) { c.Search.URL = v },
	},
	"log-level": {
		get:      func(c *Config) string { return c.Logging.Level },
		set:      func(c *Config, v string) { c.Logging.Level = v },
		validate: validateLevel,
	},
	"index-backend": {
		get:      func(c *Config) string { return c.Index.Backend },
		set:      func(c *Config, v string) { c.Index.Backend = v },
		validate: validateBackend,
	},
	"history-page-limit": {
		get: func(c *Config) string {
			if c.History.PageLimit == 0 {
				return ""
			}
			return strconv.Itoa(c.History.PageLimit)
		},
		set: func(c *Config, v string) { c.History.PageLimit, _ = strconv.Atoi(v) },
		validate: func(v string) error {
			if n, err := strconv.Atoi(v); err != nil || n < 1 {
				return fmt.Errorf("config: history-page-limit must be a positive integer (got %q): %w", v, domain.ErrInvalidInput)
			}
			return nil
		},
	},
}

// Keys lists the settable keys in display order.
func Keys() []string {
	return []string{"bot-token", "searxng-url", "log-level", "index-backend", "history-page-limit"}
}

func lookup(key string) (settingField, error) {
	field, ok := settings[key]
	if !ok {
		return settingField{}, fmt.Errorf("unknown config key %q (valid keys: %s): %w",
			key, strings.Join(Keys(), ", "), domain.ErrInvalidInput)
	}
	return field, nil
}

// Get returns the value stored in the config file, or "" when unset.
func Get(workspace, key string) (string, error) {
	field, err := lookup(key)
	if err != nil {
		return "", err
	}
	fileCfg, err := readFile(Path(workspace))
	if err != nil {
		return "", err
	}
	return field.get(&fileCfg), nil
}

// Set stores a value in the config file, creating it if needed.
func Set(workspace, key, value string) error {
	field, err := lookup(key)
	if err != nil {
		return err
	}
	if field.validate != nil {
		if err := field.validate(value); err != nil {
			return err
		}
	}

	path := Path(workspace)
	fileCfg, err := readFile(path)
	if err != nil {
		return fmt.Errorf("%w; fix or remove %s before setting values", err, path)
	}
	field.set(&fileCfg, value)

	return save(path, fileCfg)
}

// List returns every key that has a value in the config file.
func List(workspace string) ([]Setting, error) {
	fileCfg, err := readFile(Path(workspace))
	if err != nil {
		return nil, err
	}

	out := []Setting{}
	for _, key := range Keys() {
		if v := settings[key].get(&fileCfg); v != "" {
			out = append(out, Setting{Key: key, Value: v})
		}
	}
	return out, nil
}

// Mask hides all but the edges of a secret.
func Mask(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
