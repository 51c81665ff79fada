package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rocketscienceinc/tictactoe-program/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-program/internal/entity"
	"github.com/rocketscienceinc/tictactoe-program/internal/usecase"
)

type gameUseCase interface {
	Initialize(ctx context.Context, req usecase.InitializeRequest) (*entity.Account, error)
	MakeMove(ctx context.Context, req usecase.MoveRequest) (*entity.Account, error)
	GetGame(ctx context.Context, id string) (*entity.Account, error)
}

type createGameRequest struct {
	GameID    string `json:"game_id"`
	CreatorID string `json:"creator_id"`
}

// moveRequest - pointers tell a missing coordinate apart from 0.
type moveRequest struct {
	PlayerID string `json:"player_id"`
	Row      *int   `json:"row" binding:"required"`
	Col      *int   `json:"col" binding:"required"`
}

type gameResponse struct {
	ID            string         `json:"id"`
	Creator       string         `json:"creator"`
	Board         entity.Board   `json:"board"`
	CurrentPlayer entity.Mark    `json:"current_player"`
	IsActive      bool           `json:"is_active"`
	Outcome       entity.Outcome `json:"outcome"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newGameResponse(account *entity.Account) gameResponse {
	return gameResponse{
		ID:            account.ID,
		Creator:       account.Creator,
		Board:         account.Game.Board,
		CurrentPlayer: account.Game.CurrentPlayer,
		IsActive:      account.Game.IsActive,
		Outcome:       account.Game.Outcome(),
	}
}

type Handlers struct {
	logger      *slog.Logger
	gameUseCase gameUseCase
}

func NewHandlers(logger *slog.Logger, gameUseCase gameUseCase) *Handlers {
	return &Handlers{
		logger:      logger.With("component", "rest_handlers"),
		gameUseCase: gameUseCase,
	}
}

func (that *Handlers) CreateGame(c *gin.Context) {
	var req createGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		that.writeError(c, "CreateGame", errors.Join(apperror.ErrInvalidRequest, err))
		return
	}

	account, err := that.gameUseCase.Initialize(c.Request.Context(), usecase.InitializeRequest{
		GameID:    req.GameID,
		CreatorID: req.CreatorID,
	})
	if err != nil {
		that.writeError(c, "CreateGame", err)
		return
	}

	c.JSON(http.StatusCreated, newGameResponse(account))
}

func (that *Handlers) GetGame(c *gin.Context) {
	account, err := that.gameUseCase.GetGame(c.Request.Context(), c.Param("id"))
	if err != nil {
		that.writeError(c, "GetGame", err)
		return
	}

	c.JSON(http.StatusOK, newGameResponse(account))
}

func (that *Handlers) MakeMove(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		that.writeError(c, "MakeMove", errors.Join(apperror.ErrInvalidRequest, err))
		return
	}

	account, err := that.gameUseCase.MakeMove(c.Request.Context(), usecase.MoveRequest{
		GameID:   c.Param("id"),
		PlayerID: req.PlayerID,
		Row:      *req.Row,
		Col:      *req.Col,
	})
	if err != nil {
		that.writeError(c, "MakeMove", err)
		return
	}

	c.JSON(http.StatusOK, newGameResponse(account))
}

func (that *Handlers) writeError(c *gin.Context, method string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		that.logger.ErrorContext(c.Request.Context(), "request failed", "method", method, "error", err)
	}

	c.JSON(status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrInvalidMove), errors.Is(err, apperror.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrGameEnded),
		errors.Is(err, apperror.ErrSpaceTaken),
		errors.Is(err, apperror.ErrGameAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
