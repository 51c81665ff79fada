package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rocketscienceinc/tictactoe-program/internal/config"
	"github.com/rocketscienceinc/tictactoe-program/internal/events"
	"github.com/rocketscienceinc/tictactoe-program/internal/repository"
	"github.com/rocketscienceinc/tictactoe-program/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-program/internal/tictactoe"
	"github.com/rocketscienceinc/tictactoe-program/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-program/transport/rest"
)

const shutdownTimeout = 10 * time.Second

var ErrAddrNotFound = errors.New("redis address string is empty")

// App - the game manager wired to the configured storage.
type App struct {
	Manager *usecase.GameManager

	close func() error
}

// Open - connects to the storage selected by conf.Storage.Driver.
func Open(ctx context.Context, logger *slog.Logger, conf *config.Config) (*App, error) {
	var (
		gameRepo  repository.GameRepository
		publisher interface {
			Publish(ctx context.Context, event events.Event) error
		}
		closeFn func() error
	)

	switch conf.Storage.Driver {
	case config.DriverRedis:
		redisAddrString := conf.Redis.GetRedisAddr()
		if conf.Redis.Host == "" {
			return nil, ErrAddrNotFound
		}

		redisStorage, err := storage.New(ctx, redisAddrString, conf.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("could not connect to redis storage: %w", err)
		}

		gameRepo = repository.NewGameRepository(redisStorage)
		publisher = events.NewRedisPublisher(redisStorage)
		closeFn = redisStorage.Close

	case config.DriverSQLite:
		sqliteStorage, err := storage.NewSQLiteStorage(ctx, conf.SQLiteStoragePath)
		if err != nil {
			return nil, fmt.Errorf("could not open sqlite storage: %w", err)
		}

		if err = sqliteStorage.Init(ctx); err != nil {
			return nil, errors.Join(fmt.Errorf("could not init sqlite storage: %w", err), sqliteStorage.Close())
		}

		gameRepo = repository.NewSQLiteGameRepository(sqliteStorage.Connection)
		publisher = events.NewLogPublisher(logger)
		closeFn = sqliteStorage.Close

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, conf.Storage.Driver)
	}

	gameController := tictactoe.NewGameController(logger)

	return &App{
		Manager: usecase.NewGameManager(logger, gameRepo, publisher, gameController),
		close:   closeFn,
	}, nil
}

func (that *App) Close() error {
	return that.close()
}

// RunApp - runs the HTTP host until ctx is canceled or a termination signal arrives.
func RunApp(ctx context.Context, logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := Open(ctx, logger, conf)
	if err != nil {
		return err
	}

	defer func() {
		if err = app.Close(); err != nil {
			log.Error("could not close storage", "error", err)
		}
	}()

	if conf.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := rest.New(logger, conf.HTTPPort, app.Manager)

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		if httpErr := server.Start(); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
