package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/readstack/readstack/internal/app"
	"github.com/readstack/readstack/internal/platform/config"
	db "github.com/readstack/readstack/internal/storage"
)

func main() {
	mode := flag.String("mode", "worker", "Service mode (worker, submit)")
	submitURL := flag.String("url", "", "Content URL (for submit mode)")
	submitType := flag.String("type", "article", "Content type (article, podcast, news)")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolOpts := db.PoolOptions{
		MaxConns:          cfg.DBMaxConnections,
		MinConns:          cfg.DBMinConnections,
		MaxConnIdleTime:   cfg.DBMaxConnIdleTime,
		MaxConnLifetime:   cfg.DBMaxConnLifetime,
		HealthCheckPeriod: cfg.DBHealthCheckPeriod,
	}

	database, err := db.NewWithOptions(ctx, cfg.PostgresDSN, poolOpts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	application := app.New(cfg, database, &logger)

	if err := runMode(ctx, application, *mode, *submitURL, *submitType); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")

			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func runMode(ctx context.Context, application *app.App, mode, submitURL, submitType string) error {
	switch mode {
	case "worker":
		go func() {
			if err := application.StartHealthServer(ctx); err != nil {
				log.Printf("health check server error: %v", err)
			}
		}()

		return application.RunWorkers(ctx)
	case "submit":
		if submitURL == "" {
			return errors.New("submit mode requires --url")
		}

		id, err := application.SubmitContent(ctx, submitURL, submitType)
		if err != nil {
			return err
		}

		fmt.Println(id)

		return nil
	default:
		log.Fatalf("Usage: %s --mode=[worker|submit]", os.Args[0])

		return nil
	}
}
