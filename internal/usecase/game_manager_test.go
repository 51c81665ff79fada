package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/rocketscienceinc/tictactoe-program/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-program/internal/entity"
	"github.com/rocketscienceinc/tictactoe-program/internal/events"
	"github.com/rocketscienceinc/tictactoe-program/internal/repository"
	"github.com/rocketscienceinc/tictactoe-program/internal/tictactoe"
	mockedUseCase "github.com/rocketscienceinc/tictactoe-program/mocks/usecase"
	"github.com/rocketscienceinc/tictactoe-program/testing/suite"
)

var (
	errRedisDown   = errors.New("redis down")
	errBrokerDown  = errors.New("broker down")
	errStorageFull = errors.New("storage is full")
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newManager(repo gameRepo, publisher eventPublisher, opts ...Option) *GameManager {
	logger := newLogger()

	return NewGameManager(logger, repo, publisher, tictactoe.NewGameController(logger), opts...)
}

// applyTo makes the mocked Update run apply against game, the way a repository does.
func applyTo(id string, game entity.Game) func(context.Context, string, func(*entity.Game) error) (*entity.Account, error) {
	return func(_ context.Context, _ string, apply func(*entity.Game) error) (*entity.Account, error) {
		if err := apply(&game); err != nil {
			return nil, err
		}

		return &entity.Account{ID: id, Creator: "alice", Game: game}, nil
	}
}

func almostWon() entity.Game {
	return entity.Game{
		Board: entity.Board{
			{entity.PlayerX, entity.PlayerX, entity.Empty},
			{entity.PlayerO, entity.PlayerO, entity.Empty},
			{},
		},
		CurrentPlayer: entity.PlayerX,
		IsActive:      true,
	}
}

func TestGameManager_Initialize(t *testing.T) {
	ctx := context.Background()

	t.Run("Allocates an identity when none is given", func(t *testing.T) {
		// Given: a repository accepting any new game
		mockGameRepo := mockedUseCase.NewMockgameRepo(t)
		mockPublisher := mockedUseCase.NewMockeventPublisher(t)
		manager := newManager(mockGameRepo, mockPublisher)

		mockGameRepo.EXPECT().
			Create(mock.Anything, mock.AnythingOfType("*entity.Account")).
			Return(nil).
			Once()

		// When: Initialize is called without a game id
		account, err := manager.Initialize(ctx, InitializeRequest{CreatorID: "alice"})

		// Then: a fresh active game owned by alice is returned
		require.NoError(t, err)
		assert.NotEmpty(t, account.ID)
		assert.Equal(t, "alice", account.Creator)
		assert.Equal(t, *entity.NewGame(), account.Game)
	})

	t.Run("Keeps the requested identity", func(t *testing.T) {
		mockGameRepo := mockedUseCase.NewMockgameRepo(t)
		manager := newManager(mockGameRepo, mockedUseCase.NewMockeventPublisher(t))

		mockGameRepo.EXPECT().
			Create(mock.Anything, mock.MatchedBy(func(account *entity.Account) bool {
				return account.ID == "game-1" && account.Game.IsActive
			})).
			Return(nil).
			Once()

		account, err := manager.Initialize(ctx, InitializeRequest{GameID: "game-1", CreatorID: "alice"})

		require.NoError(t, err)
		assert.Equal(t, "game-1", account.ID)
	})

	t.Run("Refuses an existing identity", func(t *testing.T) {
		// Given: a repository that already holds game-1
		mockGameRepo := mockedUseCase.NewMockgameRepo(t)
		manager := newManager(mockGameRepo, mockedUseCase.NewMockeventPublisher(t))

		mockGameRepo.EXPECT().
			Create(mock.Anything, mock.Anything).
			Return(apperror.ErrGameAlreadyExists).
			Once()

		// When: game-1 is initialized again
		account, err := manager.Initialize(ctx, InitializeRequest{GameID: "game-1", CreatorID: "alice"})

		// Then: ErrGameAlreadyExists is returned
		require.ErrorIs(t, err, apperror.ErrGameAlreadyExists)
		assert.Nil(t, account)
	})

	t.Run("Returns repository errors", func(t *testing.T) {
		mockGameRepo := mockedUseCase.NewMockgameRepo(t)
		manager := newManager(mockGameRepo, mockedUseCase.NewMockeventPublisher(t))

		mockGameRepo.EXPECT().
			Create(mock.Anything, mock.Anything).
			Return(errStorageFull).
			Once()

		_, err := manager.Initialize(ctx, InitializeRequest{CreatorID: "alice"})

		require.ErrorIs(t, err, errStorageFull)
	})

	t.Run("Rejects invalid requests without touching storage", func(t *testing.T) {
		tests := []struct {
			name string
			req  InitializeRequest
		}{
			{name: "missing creator", req: InitializeRequest{GameID: "game-1"}},
			{name: "slash in game id", req: InitializeRequest{GameID: "a/b", CreatorID: "alice"}},
			{name: "game id too long", req: InitializeRequest{GameID: string(make([]byte, 65)), CreatorID: "alice"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				manager := newManager(mockedUseCase.NewMockgameRepo(t), mockedUseCase.NewMockeventPublisher(t))

				_, err := manager.Initialize(ctx, tt.req)

				require.ErrorIs(t, err, apperror.ErrInvalidRequest)
			})
		}
	})
}

func TestGameManager_MakeMove(t *testing.T) {
	ctx := context.Background()

	t.Run("Applies a move to an ongoing game", func(t *testing.T) {
		// Given: a fresh game and no expected events
		mockGameRepo := mockedUseCase.NewMockgameRepo(t)
		mockPublisher := mockedUseCase.NewMockeventPublisher(t)
		manager := newManager(mockGameRepo, mockPublisher)

		mockGameRepo.EXPECT().
			Update(mock.Anything, "game-1", mock.Anything).
			RunAndReturn(applyTo("game-1", *entity.NewGame())).
			Once()

		// When: X plays the center
		account, err := manager.MakeMove(ctx, MoveRequest{GameID: "game-1", PlayerID: "alice", Row: 1, Col: 1})

		// Then: the mark is placed and O is due
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerX, account.Game.Board[1][1])
		assert.Equal(t, entity.PlayerO, account.Game.CurrentPlayer)
		assert.True(t, account.Game.IsActive)
	})

	t.Run("Announces a win", func(t *testing.T) {
		// Given: X is one move away from the top row
		mockGameRepo := mockedUseCase.NewMockgameRepo(t)
		mockPublisher := mockedUseCase.NewMockeventPublisher(t)
		manager := newManager(mockGameRepo, mockPublisher)

		mockGameRepo.EXPECT().
			Update(mock.Anything, "game-1", mock.Anything).
			RunAndReturn(applyTo("game-1", almostWon())).
			Once()

		mockPublisher.EXPECT().
			Publish(mock.Anything, mock.MatchedBy(func(event events.Event) bool {
				return event.Type == events.TypeGameWon
			})).
			Return(nil).
			Once()

		// When: X completes the row
		account, err := manager.MakeMove(ctx, MoveRequest{GameID: "game-1", PlayerID: "alice", Row: 0, Col: 2})

		// Then: the game is over with X as winner
		require.NoError(t, err)
		assert.False(t, account.Game.IsActive)
		assert.Equal(t, entity.Outcome{Result: entity.ResultWin, Winner: entity.PlayerX}, account.Game.Outcome())
	})

	t.Run("A failed announcement does not fail the move", func(t *testing.T) {
		mockGameRepo := mockedUseCase.NewMockgameRepo(t)
		mockPublisher := mockedUseCase.NewMockeventPublisher(t)
		manager := newManager(mockGameRepo, mockPublisher)

		mockGameRepo.EXPECT().
			Update(mock.Anything, "game-1", mock.Anything).
			RunAndReturn(applyTo("game-1", almostWon())).
			Once()

		mockPublisher.EXPECT().
			Publish(mock.Anything, mock.Anything).
			Return(errBrokerDown).
			Once()

		account, err := manager.MakeMove(ctx, MoveRequest{GameID: "game-1", PlayerID: "alice", Row: 0, Col: 2})

		require.NoError(t, err)
		assert.False(t, account.Game.IsActive)
	})

	t.Run("Passes engine errors through", func(t *testing.T) {
		tests := []struct {
			name    string
			game    entity.Game
			row     int
			col     int
			wantErr error
		}{
			{name: "space taken", game: almostWon(), row: 0, col: 0, wantErr: apperror.ErrSpaceTaken},
			{name: "out of bounds", game: almostWon(), row: 3, col: 0, wantErr: apperror.ErrInvalidMove},
			{name: "negative column", game: almostWon(), row: 0, col: -1, wantErr: apperror.ErrInvalidMove},
			{name: "uninitialized game", game: entity.Game{}, row: 0, col: 0, wantErr: apperror.ErrGameEnded},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				// Given: a stored game the move is illegal for
				mockGameRepo := mockedUseCase.NewMockgameRepo(t)
				manager := newManager(mockGameRepo, mockedUseCase.NewMockeventPublisher(t))

				mockGameRepo.EXPECT().
					Update(mock.Anything, "game-1", mock.Anything).
					RunAndReturn(applyTo("game-1", tt.game)).
					Once()

				// When: the move is submitted
				account, err := manager.MakeMove(ctx, MoveRequest{GameID: "game-1", PlayerID: "bob", Row: tt.row, Col: tt.col})

				// Then: the engine error reaches the caller
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, account)
			})
		}
	})

	t.Run("Returns repository errors", func(t *testing.T) {
		mockGameRepo := mockedUseCase.NewMockgameRepo(t)
		manager := newManager(mockGameRepo, mockedUseCase.NewMockeventPublisher(t))

		mockGameRepo.EXPECT().
			Update(mock.Anything, "game-1", mock.Anything).
			Return(nil, errRedisDown).
			Once()

		_, err := manager.MakeMove(ctx, MoveRequest{GameID: "game-1", PlayerID: "bob"})

		require.ErrorIs(t, err, errRedisDown)
	})

	t.Run("Rejects requests without a player", func(t *testing.T) {
		manager := newManager(mockedUseCase.NewMockgameRepo(t), mockedUseCase.NewMockeventPublisher(t))

		_, err := manager.MakeMove(ctx, MoveRequest{GameID: "game-1"})

		require.ErrorIs(t, err, apperror.ErrInvalidRequest)
	})
}

func TestGameManager_GetGame(t *testing.T) {
	ctx := context.Background()

	t.Run("Returns the stored game", func(t *testing.T) {
		mockGameRepo := mockedUseCase.NewMockgameRepo(t)
		manager := newManager(mockGameRepo, mockedUseCase.NewMockeventPublisher(t))

		stored := &entity.Account{ID: "game-1", Creator: "alice", Game: *entity.NewGame()}
		mockGameRepo.EXPECT().
			GetByID(mock.Anything, "game-1").
			Return(stored, nil).
			Once()

		account, err := manager.GetGame(ctx, "game-1")

		require.NoError(t, err)
		assert.Equal(t, stored, account)
	})

	t.Run("Returns ErrGameNotFound", func(t *testing.T) {
		mockGameRepo := mockedUseCase.NewMockgameRepo(t)
		manager := newManager(mockGameRepo, mockedUseCase.NewMockeventPublisher(t))

		mockGameRepo.EXPECT().
			GetByID(mock.Anything, "missing").
			Return((*entity.Account)(nil), apperror.ErrGameNotFound).
			Once()

		_, err := manager.GetGame(ctx, "missing")

		require.ErrorIs(t, err, apperror.ErrGameNotFound)
	})

	t.Run("Rejects an empty id", func(t *testing.T) {
		manager := newManager(mockedUseCase.NewMockgameRepo(t), mockedUseCase.NewMockeventPublisher(t))

		_, err := manager.GetGame(ctx, "")

		require.ErrorIs(t, err, apperror.ErrInvalidRequest)
	})
}

func TestGameManager_Telemetry(t *testing.T) {
	ctx := context.Background()

	// Given: a manager reporting into in-memory exporters
	spans := tracetest.NewInMemoryExporter()
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	mockGameRepo := mockedUseCase.NewMockgameRepo(t)
	mockPublisher := mockedUseCase.NewMockeventPublisher(t)
	manager := newManager(mockGameRepo, mockPublisher,
		WithTracerProvider(tracerProvider),
		WithMeterProvider(meterProvider),
	)

	mockGameRepo.EXPECT().
		Update(mock.Anything, "game-1", mock.Anything).
		RunAndReturn(applyTo("game-1", almostWon())).
		Once()
	mockGameRepo.EXPECT().
		Update(mock.Anything, "game-2", mock.Anything).
		RunAndReturn(applyTo("game-2", almostWon())).
		Once()
	mockPublisher.EXPECT().
		Publish(mock.Anything, mock.Anything).
		Return(nil).
		Once()

	// When: one winning move and one move on a taken cell are made
	_, err := manager.MakeMove(ctx, MoveRequest{GameID: "game-1", PlayerID: "alice", Row: 0, Col: 2})
	require.NoError(t, err)
	_, err = manager.MakeMove(ctx, MoveRequest{GameID: "game-2", PlayerID: "bob", Row: 1, Col: 1})
	require.ErrorIs(t, err, apperror.ErrSpaceTaken)

	// Then: both moves are traced, the rejected one as an error
	ended := spans.GetSpans()
	require.Len(t, ended, 2)
	assert.Equal(t, "GameManager.MakeMove", ended[0].Name)
	assert.Equal(t, codes.Unset, ended[0].Status.Code)
	assert.Equal(t, codes.Error, ended[1].Status.Code)

	// Then: the counters carry one accepted move, one rejected move and one win
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	moves := sumByAttribute(t, rm, "tictactoe.moves", "result")
	assert.Equal(t, map[string]int64{"accepted": 1, "space_taken": 1}, moves)

	finished := sumByAttribute(t, rm, "tictactoe.games.finished", "outcome")
	assert.Equal(t, map[string]int64{string(entity.ResultWin): 1}, finished)
}

func sumByAttribute(t *testing.T, rm metricdata.ResourceMetrics, name string, key attribute.Key) map[string]int64 {
	t.Helper()

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)

			values := make(map[string]int64)
			for _, point := range sum.DataPoints {
				value, _ := point.Attributes.Value(key)
				values[value.AsString()] += point.Value
			}

			return values
		}
	}

	t.Fatalf("metric %s not found", name)

	return nil
}

func TestGameManager_SQLite(t *testing.T) {
	ctx, st := suite.NewSQLite(t)

	// Given: a manager over a real sqlite repository
	manager := NewGameManager(st.Logger,
		repository.NewSQLiteGameRepository(st.SQLite),
		events.NewLogPublisher(st.Logger),
		tictactoe.NewGameController(st.Logger),
	)

	account, err := manager.Initialize(ctx, InitializeRequest{GameID: "game-1", CreatorID: "alice"})
	require.NoError(t, err)

	// When: the draw sequence is played out
	moves := [][2]int{{0, 0}, {0, 1}, {0, 2}, {1, 1}, {1, 0}, {1, 2}, {2, 1}, {2, 0}, {2, 2}}
	for _, m := range moves {
		account, err = manager.MakeMove(ctx, MoveRequest{GameID: "game-1", PlayerID: "alice", Row: m[0], Col: m[1]})
		require.NoError(t, err)
	}

	// Then: the stored game is a draw and refuses further moves
	stored, err := manager.GetGame(ctx, "game-1")
	require.NoError(t, err)
	assert.Equal(t, account, stored)
	assert.Equal(t, entity.ResultDraw, stored.Game.Outcome().Result)

	_, err = manager.MakeMove(ctx, MoveRequest{GameID: "game-1", PlayerID: "alice", Row: 0, Col: 0})
	require.ErrorIs(t, err, apperror.ErrGameEnded)
}
