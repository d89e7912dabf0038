package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ChannelManager/internal/config"
	"ChannelManager/internal/dedup"
	"ChannelManager/internal/domain"
	"ChannelManager/internal/history"
	"ChannelManager/internal/infrastructure/parser"
	"ChannelManager/internal/infrastructure/storage"
	"ChannelManager/internal/infrastructure/telegram"
	"ChannelManager/internal/logging"
	"ChannelManager/internal/ports"
	"ChannelManager/internal/usecase"
)

// Options are the global settings of one invocation.
type Options struct {
	Workspace string
	// BotToken overrides every other token source when set.
	BotToken string
	// LogLevel overrides the configured level when set.
	LogLevel  string
	LogOutput io.Writer
	// HTTPClient is shared by the Bot API and the t.me preview; nil uses defaults.
	HTTPClient *http.Client
	Now        func() time.Time
}

// Application wires config, adapters and use cases for one invocation.
type Application struct {
	Config      config.Config
	Logger      *slog.Logger
	RunID       string
	Workspace   string
	TokenSource string

	Channels *usecase.Channels
	Dedup    *usecase.Dedup
	Queue    *usecase.Queue
	Matcher  *dedup.Matcher
	Store    *storage.Workspace
}

// New builds the application. A corrupt config file is reported as a warning
// and defaults are used instead.
func New(opts Options) (*Application, error) {
	if opts.Workspace == "" {
		opts.Workspace = "."
	}

	cfg, cfgErr := config.Load(opts.Workspace)
	if cfgErr != nil && !errors.Is(cfgErr, domain.ErrCorrupt) {
		return nil, cfgErr
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	runID := uuid.NewString()[:8]
	logger := logging.New(cfg.Logging.Level, opts.LogOutput).With("run", runID)
	if cfgErr != nil {
		logger.Warn("config file ignored, using defaults", "error", cfgErr)
	}

	store, err := storage.NewWorkspace(opts.Workspace, cfg.Index.Backend, logger.With("component", "storage"))
	if err != nil {
		return nil, err
	}

	token, source := config.ResolveBotToken(opts.BotToken, opts.Workspace)
	var (
		publisher ports.Publisher
		inspector ports.BotInspector
	)
	if token != "" {
		bot := telegram.NewClient(token, cfg.Telegram.APIURL, opts.HTTPClient)
		publisher = telegram.NewPublisher(bot)
		inspector = telegram.NewInspector(bot)
	}

	sources := history.NewRegistry()
	sources.Register(parser.NewTMEHistory(opts.HTTPClient, parser.TMEOptions{
		MinPageSize:       cfg.History.MinPageSize,
		RequestsPerSecond: cfg.History.RequestsPerSecond,
	}, logger.With("component", "history.tme")))
	sources.Register(parser.NewExportHistory())

	matcher := dedup.NewMatcher(cfg.Dedup.Engine())

	a := &Application{
		Config:      cfg,
		Logger:      logger,
		RunID:       runID,
		Workspace:   opts.Workspace,
		TokenSource: source,
		Matcher:     matcher,
		Store:       store,
	}
	a.Channels = usecase.NewChannels(usecase.ChannelsDeps{
		Channels:  store,
		Queues:    store,
		Indexes:   store,
		Inspector: inspector,
		Logger:    logger,
		Now:       opts.Now,
	})
	a.Dedup = usecase.NewDedup(usecase.DedupDeps{
		Channels:  store,
		Indexes:   store,
		Sources:   sources,
		Resolver:  inspector,
		Matcher:   matcher,
		Logger:    logger,
		PageLimit: cfg.History.PageLimit,
	})
	a.Queue = usecase.NewQueue(usecase.QueueDeps{
		Channels:  store,
		Queues:    store,
		Indexes:   store,
		Publisher: publisher,
		Matcher:   matcher,
		Logger:    logger,
	})

	logger.Debug("application ready",
		"workspace", store.Root(), "backend", cfg.Index.Backend, "token", tokenState(source))
	return a, nil
}

func tokenState(source string) string {
	if source == "" {
		return "missing"
	}
	return fmt.Sprintf("via %s", source)
}
