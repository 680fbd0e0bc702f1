package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"xunji/internal/adapter/backend"
	"xunji/internal/adapter/credential"
	"xunji/internal/adapter/notify"
	"xunji/internal/adapter/transcript"
	"xunji/internal/domain"
	"xunji/internal/infra/config"
	"xunji/internal/infra/logger"
	"xunji/internal/infra/tracer"
)

// app holds the state shared by all commands. Components are built on
// first use so that flag errors and help output need no config.
type app struct {
	ctx        context.Context
	configPath *string
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer

	ready   bool
	cfg     *config.Config
	log     *slog.Logger
	tokens  *credential.FileStore
	client  *backend.Client
	history *transcript.SQLiteStore
	closers []func()
}

func newApp(ctx context.Context, configPath *string, stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{ctx: ctx, configPath: configPath, stdin: stdin, stdout: stdout, stderr: stderr}
}

// defaultConfigPath returns $XUNJI_CONFIG or ~/.xunji/config.yaml.
func defaultConfigPath() string {
	if p := os.Getenv("XUNJI_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".xunji", "config.yaml")
}

// setup loads config and wires the backend client.
func (a *app) setup() error {
	if a.ready {
		return nil
	}

	// 1. Config
	path := *a.configPath
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return domain.NewDomainError("config", domain.ErrConfigLoad, err.Error())
	}
	a.cfg = cfg

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	a.log = log
	a.closers = append(a.closers, func() { _ = logCloser() })

	tracerShutdown, err := tracer.Setup(a.ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	a.closers = append(a.closers, func() { _ = tracerShutdown(context.Background()) })

	// 3. Credentials
	passphrase := ""
	if cfg.Auth.EncryptToken {
		passphrase = os.Getenv("XUNJI_TOKEN_KEY")
		if passphrase == "" {
			return domain.NewDomainError("credential", domain.ErrNotConfigured, "auth.encrypt_token is set but XUNJI_TOKEN_KEY is empty")
		}
	}
	a.tokens = credential.NewFileStore(cfg.Auth.TokenFile, passphrase)

	var creds domain.CredentialSource = a.tokens
	onExpiry := notify.ExpiryHook(a.tokens.Clear)
	if cfg.Auth.Token != "" {
		creds = credential.Static(cfg.Auth.Token)
		onExpiry = nil
	}

	// 4. Backend client
	notifier := notify.NewConsole(a.stderr, logger.Component(log, "notify"), onExpiry)
	a.client = backend.NewClient(cfg.Server, creds, notifier, logger.Component(log, "backend"))

	a.ready = true
	return nil
}

// transcript opens the local history store, or returns nil when history
// is disabled.
func (a *app) transcript() (domain.TranscriptStore, error) {
	if !a.cfg.History.Enabled {
		return nil, nil
	}
	if a.history != nil {
		return a.history, nil
	}
	store, err := transcript.NewSQLiteStore(a.cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	a.history = store
	a.closers = append(a.closers, func() { _ = store.Close() })
	return store, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
