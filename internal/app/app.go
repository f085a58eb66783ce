package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/driver/memory"
	"github.com/vovakirdan/roomchat/internal/store"
	"github.com/vovakirdan/roomchat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/roomchat/internal/transport/http"
)

// App wires together the chat store, persistence and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	chat            *memory.Store
	store           store.Store
	archiver        *Archiver
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
// Without a database path permissions live in memory and no history is archived.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	var (
		perms interface {
			store.Permissions
			store.PermissionGranter
		} = store.NewAllowList()
		st       store.Store
		archiver *Archiver
	)

	if cfg.DatabasePath != "" {
		var err error
		st, err = sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		perms = st
		archiver = NewArchiver(st, cfg.ArchiveBuffer, logger)
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")
	}

	if err := store.Seed(context.Background(), perms, cfg.Permissions); err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, fmt.Errorf("seed permissions: %w", err)
	}

	chat := memory.NewStore(
		memory.WithPermissions(perms),
		memory.WithLogger(logger),
	)

	backend := transporthttp.Backend{Chat: chat}
	if st != nil {
		backend.Archive = st
	}
	server := transporthttp.NewServer(backend, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		chat:            chat,
		store:           st,
		archiver:        archiver,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	if a.archiver != nil {
		a.archiver.Attach(a.chat)
	}

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("starting roomchat server")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup flushes the archive and closes the database.
func (a *App) cleanup() {
	if a.archiver != nil {
		a.archiver.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
