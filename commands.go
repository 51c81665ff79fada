package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/log"

	app "github.com/rocketscienceinc/tictactoe-program/internal"
	"github.com/rocketscienceinc/tictactoe-program/internal/config"
	"github.com/rocketscienceinc/tictactoe-program/internal/entity"
	"github.com/rocketscienceinc/tictactoe-program/internal/logger"
	"github.com/rocketscienceinc/tictactoe-program/internal/telemetry"
	"github.com/rocketscienceinc/tictactoe-program/internal/usecase"
)

// commandEnv is filled in by the root Before hook and shared by every command.
type commandEnv struct {
	conf      *config.Config
	logger    *slog.Logger
	providers *telemetry.Providers
}

func newCommand() *cli.Command {
	rt := &commandEnv{}

	return &cli.Command{
		Name:  "tictactoe",
		Usage: "host and play tic-tac-toe games",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.yml",
				Usage:   "path to the YAML config; the environment is used when it does not exist",
				Sources: cli.EnvVars("CONFIG_PATH"),
			},
		},
		Before: rt.init,
		After:  rt.shutdown,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP host",
				Action: rt.serve,
			},
			{
				Name:  "new",
				Usage: "create a game",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "game", Usage: "game id, allocated when empty"},
					&cli.StringFlag{Name: "creator", Usage: "creator id", Required: true},
				},
				Action: rt.newGame,
			},
			{
				Name:  "move",
				Usage: "place the mark that is due",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "game", Required: true},
					&cli.StringFlag{Name: "player", Required: true},
					&cli.IntFlag{Name: "row", Required: true},
					&cli.IntFlag{Name: "col", Required: true},
				},
				Action: rt.move,
			},
			{
				Name:  "show",
				Usage: "print a game",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "game", Required: true},
				},
				Action: rt.show,
			},
		},
	}
}

func (that *commandEnv) init(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	conf, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, fmt.Errorf("unable to load config: %w", err)
	}
	that.conf = conf

	var provider log.LoggerProvider
	if conf.Telemetry.Enabled {
		that.providers, err = telemetry.Init(ctx, conf.Telemetry, cmd.Root().Writer)
		if err != nil {
			return ctx, fmt.Errorf("unable to init telemetry: %w", err)
		}

		if that.providers.LoggerProvider != nil {
			provider = that.providers.LoggerProvider
		}
	}

	that.logger = logger.New(cmd.Root().ErrWriter, conf.LogLevel, provider)

	return ctx, nil
}

func (that *commandEnv) shutdown(ctx context.Context, _ *cli.Command) error {
	if that.providers == nil {
		return nil
	}

	return that.providers.Shutdown(ctx)
}

func (that *commandEnv) serve(ctx context.Context, _ *cli.Command) error {
	if err := app.RunApp(ctx, that.logger, that.conf); err != nil {
		return fmt.Errorf("app run failed: %w", err)
	}

	return nil
}

func (that *commandEnv) newGame(ctx context.Context, cmd *cli.Command) error {
	return that.withManager(ctx, cmd, func(manager *usecase.GameManager) (*entity.Account, error) {
		return manager.Initialize(ctx, usecase.InitializeRequest{
			GameID:    cmd.String("game"),
			CreatorID: cmd.String("creator"),
		})
	})
}

func (that *commandEnv) move(ctx context.Context, cmd *cli.Command) error {
	return that.withManager(ctx, cmd, func(manager *usecase.GameManager) (*entity.Account, error) {
		return manager.MakeMove(ctx, usecase.MoveRequest{
			GameID:   cmd.String("game"),
			PlayerID: cmd.String("player"),
			Row:      cmd.Int("row"),
			Col:      cmd.Int("col"),
		})
	})
}

func (that *commandEnv) show(ctx context.Context, cmd *cli.Command) error {
	return that.withManager(ctx, cmd, func(manager *usecase.GameManager) (*entity.Account, error) {
		return manager.GetGame(ctx, cmd.String("game"))
	})
}

// withManager opens the configured storage for a single operation and prints its result.
func (that *commandEnv) withManager(
	ctx context.Context,
	cmd *cli.Command,
	run func(manager *usecase.GameManager) (*entity.Account, error),
) error {
	application, err := app.Open(ctx, that.logger, that.conf)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := application.Close(); closeErr != nil {
			that.logger.Error("could not close storage", "error", closeErr)
		}
	}()

	account, err := run(application.Manager)
	if err != nil {
		return err
	}

	return printGame(cmd.Root().Writer, account)
}

func printGame(w io.Writer, account *entity.Account) error {
	outcome := account.Game.Outcome()

	status := string(outcome.Result)
	switch outcome.Result {
	case entity.ResultWin:
		status = fmt.Sprintf("%s wins", outcome.Winner)
	case entity.ResultOngoing:
		status = fmt.Sprintf("%s to move", account.Game.CurrentPlayer)
	}

	_, err := fmt.Fprintf(w, "game %s by %s: %s\n%s", account.ID, account.Creator, status, account.Game.String())

	return err
}
