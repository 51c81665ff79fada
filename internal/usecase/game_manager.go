package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	playgroundvalidator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/rocketscienceinc/tictactoe-program/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-program/internal/entity"
	"github.com/rocketscienceinc/tictactoe-program/internal/events"
	"github.com/rocketscienceinc/tictactoe-program/internal/validator"
)

const instrumentationName = "github.com/rocketscienceinc/tictactoe-program/internal/usecase"

type gameRepo interface {
	Create(ctx context.Context, account *entity.Account) error
	GetByID(ctx context.Context, id string) (*entity.Account, error)
	Update(ctx context.Context, id string, apply func(game *entity.Game) error) (*entity.Account, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type gameController interface {
	Initialize(game *entity.Game)
	MakeMove(game *entity.Game, row, col int) (entity.Outcome, error)
}

// InitializeRequest - an empty GameID asks the host to allocate one.
type InitializeRequest struct {
	GameID    string `json:"game_id" validate:"omitempty,max=64,printascii,excludesall=/"`
	CreatorID string `json:"creator_id" validate:"required,max=64"`
}

// MoveRequest - Row and Col are left to the game controller, which rejects them only
// after checking that the game is still running.
type MoveRequest struct {
	GameID   string `json:"game_id" validate:"required,max=64"`
	PlayerID string `json:"player_id" validate:"required,max=64"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
}

type Option func(*GameManager)

func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(that *GameManager) {
		that.tracer = provider.Tracer(instrumentationName)
	}
}

func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(that *GameManager) {
		that.meter = provider.Meter(instrumentationName)
	}
}

// GameManager is the host side of a game: it allocates records, runs every move of one
// game serially through the repository, and announces finished games.
type GameManager struct {
	logger *slog.Logger

	gameRepo   gameRepo
	publisher  eventPublisher
	controller gameController
	validate   *playgroundvalidator.Validate

	tracer        trace.Tracer
	meter         metric.Meter
	movesCounter  metric.Int64Counter
	finishCounter metric.Int64Counter
}

func NewGameManager(
	logger *slog.Logger,
	gameRepo gameRepo,
	publisher eventPublisher,
	controller gameController,
	opts ...Option,
) *GameManager {
	manager := &GameManager{
		logger: logger.With("component", "game_manager"),

		gameRepo:   gameRepo,
		publisher:  publisher,
		controller: controller,
		validate:   validator.GetValidator(),

		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	for _, opt := range opts {
		opt(manager)
	}

	manager.movesCounter = manager.newCounter("tictactoe.moves", "Moves submitted, by result.")
	manager.finishCounter = manager.newCounter("tictactoe.games.finished", "Games that reached a terminal state, by outcome.")

	return manager
}

func (that *GameManager) newCounter(name, description string) metric.Int64Counter {
	counter, err := that.meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		that.logger.Error("failed to create counter", "name", name, "error", err)
		return noop.Int64Counter{}
	}

	return counter
}

// Initialize - allocates a new game owned by the creator. An existing identity is refused.
func (that *GameManager) Initialize(ctx context.Context, req InitializeRequest) (*entity.Account, error) {
	ctx, span := that.tracer.Start(ctx, "GameManager.Initialize")
	defer span.End()

	log := that.logger.With("method", "Initialize")

	if err := that.validate.StructCtx(ctx, req); err != nil {
		return nil, failSpan(span, fmt.Errorf("%w: %w", apperror.ErrInvalidRequest, err))
	}

	gameID := req.GameID
	if gameID == "" {
		gameID = uuid.New().String()
	}

	span.SetAttributes(
		attribute.String("game.id", gameID),
		attribute.String("game.creator", req.CreatorID),
	)

	account := &entity.Account{
		ID:      gameID,
		Creator: req.CreatorID,
	}
	that.controller.Initialize(&account.Game)

	if err := that.gameRepo.Create(ctx, account); err != nil {
		return nil, failSpan(span, fmt.Errorf("failed to initialize game: %w", err))
	}

	log.InfoContext(ctx, "game initialized", "game_id", gameID, "creator", req.CreatorID)

	return account, nil
}

// MakeMove - applies one move for whichever mark is due. The caller identity is recorded
// but not bound to a mark.
func (that *GameManager) MakeMove(ctx context.Context, req MoveRequest) (*entity.Account, error) {
	ctx, span := that.tracer.Start(ctx, "GameManager.MakeMove", trace.WithAttributes(
		attribute.String("game.id", req.GameID),
		attribute.String("game.player", req.PlayerID),
		attribute.Int("move.row", req.Row),
		attribute.Int("move.col", req.Col),
	))
	defer span.End()

	log := that.logger.With("method", "MakeMove", "game_id", req.GameID, "player_id", req.PlayerID)

	if err := that.validate.StructCtx(ctx, req); err != nil {
		that.countMove(ctx, err)
		return nil, failSpan(span, fmt.Errorf("%w: %w", apperror.ErrInvalidRequest, err))
	}

	var outcome entity.Outcome
	account, err := that.gameRepo.Update(ctx, req.GameID, func(game *entity.Game) error {
		var moveErr error
		outcome, moveErr = that.controller.MakeMove(game, req.Row, req.Col)

		return moveErr
	})
	that.countMove(ctx, err)

	if err != nil {
		log.DebugContext(ctx, "move rejected", "row", req.Row, "col", req.Col, "error", err)
		return nil, failSpan(span, fmt.Errorf("failed make move: %w", err))
	}

	span.SetAttributes(attribute.String("game.result", string(outcome.Result)))

	if outcome.IsFinished() {
		that.finishCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome.Result))))
		that.announce(ctx, account, req.PlayerID)
	}

	return account, nil
}

func (that *GameManager) GetGame(ctx context.Context, id string) (*entity.Account, error) {
	ctx, span := that.tracer.Start(ctx, "GameManager.GetGame", trace.WithAttributes(attribute.String("game.id", id)))
	defer span.End()

	if id == "" {
		return nil, failSpan(span, fmt.Errorf("%w: empty game id", apperror.ErrInvalidRequest))
	}

	account, err := that.gameRepo.GetByID(ctx, id)
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("failed get game by id: %w", err))
	}

	return account, nil
}

// announce - finished games are advertised on a best effort basis.
func (that *GameManager) announce(ctx context.Context, account *entity.Account, playerID string) {
	log := that.logger.With("method", "announce", "game_id", account.ID)

	event, ok, err := events.NewGameFinished(account, playerID)
	if err != nil {
		log.ErrorContext(ctx, "failed to build event", "error", err)
		return
	}

	if !ok {
		return
	}

	if err = that.publisher.Publish(ctx, event); err != nil {
		log.ErrorContext(ctx, "failed to publish event", "type", event.Type, "error", err)
		return
	}

	log.InfoContext(ctx, "game finished", "type", event.Type)
}

func (that *GameManager) countMove(ctx context.Context, err error) {
	that.movesCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", moveResult(err))))
}

func moveResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, apperror.ErrGameEnded):
		return "game_ended"
	case errors.Is(err, apperror.ErrInvalidMove):
		return "invalid_move"
	case errors.Is(err, apperror.ErrSpaceTaken):
		return "space_taken"
	case errors.Is(err, apperror.ErrGameNotFound):
		return "not_found"
	case errors.Is(err, apperror.ErrInvalidRequest):
		return "invalid_request"
	default:
		return "error"
	}
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return err
}
