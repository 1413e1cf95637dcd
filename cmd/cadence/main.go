package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cadence/internal/auth"
	"cadence/internal/config"
	"cadence/internal/database"
	"cadence/internal/library"
	"cadence/internal/ngrok"
	"cadence/internal/playlist"
	"cadence/internal/server"
	"cadence/internal/storage"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	app := &cli.Command{
		Name:  "cadence",
		Usage: "Playlist service for a music catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "./config.toml",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, cmd.String("config"), logger)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.WithError(err).Fatal("Application error")
	}
}

// configureLogger applies the [logging] section to logger. It returns the
// opened log file, or nil when logging to stdout only.
func configureLogger(logger *logrus.Logger, cfg config.LoggingConfig) (*os.File, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.File == "" {
		return nil, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, f))
	return f, nil
}

func run(ctx context.Context, configPath string, logger *logrus.Logger) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	logFile, err := configureLogger(logger, cfg.Logging)
	if err != nil {
		return fmt.Errorf("error configuring logger: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	db, err := database.NewDatabase(cfg.Database.Path, cfg.Database.MaxConnections, logger)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	defer db.Close()

	covers, err := storage.NewCoverStore(cfg.Storage.CoversDir, cfg.Storage.PublicPrefix,
		cfg.Storage.CoverMaxSize, cfg.MaxUploadBytes(), logger)
	if err != nil {
		return fmt.Errorf("error initializing cover storage: %w", err)
	}
	defer covers.Wait()

	authService, err := auth.NewService(cfg.Auth, db)
	if err != nil {
		return fmt.Errorf("error initializing auth: %w", err)
	}

	playlists := playlist.NewRepository(db.Conn(), logger,
		playlist.WithRecommendation(cfg.Playlists.LikedWindow, cfg.Playlists.RecommendLimit))

	watcher, err := startLibrary(ctx, cfg.Library, db, logger)
	if err != nil {
		return err
	}
	if watcher != nil {
		defer watcher.Close()
	}

	if cfg.Storage.SweepEnabled {
		janitor := storage.NewJanitor(covers, playlists, cfg.SweepGracePeriod(), logger)
		if err := janitor.Start(cfg.Storage.SweepSchedule); err != nil {
			return err
		}
		defer janitor.Stop()
	}

	srv := server.New(cfg, logger, playlists, covers, db, authService)

	tunnel, err := ngrok.NewService(cfg.Ngrok, logger)
	if err != nil {
		return fmt.Errorf("error initializing ngrok: %w", err)
	}

	// Handle graceful shutdown
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	if err := tunnel.StartTunnel(sigCtx, "http://localhost:"+cfg.Server.Port); err != nil {
		logger.WithError(err).Error("Failed to start ngrok tunnel")
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := tunnel.Stop(); err != nil {
		logger.WithError(err).Warn("Failed to stop ngrok tunnel")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// startLibrary imports the music library into the track catalog and, when
// enabled, keeps watching it. The returned watcher is nil if watching is off.
func startLibrary(ctx context.Context, cfg config.LibraryConfig, db *database.Database, logger *logrus.Logger) (*library.Watcher, error) {
	if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
		logger.WithField("library_path", cfg.Path).Warn("Music directory does not exist, the track catalog will stay empty")
		return nil, nil
	}

	scanner := library.NewScanner(library.NewExtractor(cfg.SupportedFormats, logger), db, logger)

	if cfg.ScanOnStartup {
		imported, err := scanner.Scan(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("error scanning music library: %w", err)
		}
		count, err := db.CountTracks()
		if err != nil {
			logger.WithError(err).Warn("Could not get track count")
		} else if count == 0 {
			logger.WithField("supported_formats", cfg.SupportedFormats).Warn("No supported audio files found in music directory")
		}
		logger.WithFields(logrus.Fields{
			"imported": imported,
			"total":    count,
		}).Info("Music library scanned")
	}

	if !cfg.WatchForChanges {
		return nil, nil
	}
	watcher := library.NewWatcher(scanner, logger)
	if err := watcher.Start(cfg.Path); err != nil {
		return nil, fmt.Errorf("error watching music library: %w", err)
	}
	return watcher, nil
}
