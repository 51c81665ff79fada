package tictactoe

import (
	"log/slog"

	"github.com/rocketscienceinc/tictactoe-program/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-program/internal/entity"
)

// GameController owns every state transition of a game. It does no I/O apart from
// the advisory log line written when a game finishes.
type GameController struct {
	logger *slog.Logger
}

func NewGameController(logger *slog.Logger) *GameController {
	return &GameController{
		logger: logger.With("component", "game_controller"),
	}
}

// Initialize puts the game into its starting position.
func (that *GameController) Initialize(game *entity.Game) {
	game.Board = entity.Board{}
	game.CurrentPlayer = entity.PlayerX
	game.IsActive = true
}

// MakeMove places the current player's mark at (row, col). Preconditions are checked
// before anything is written, so a rejected move leaves the game untouched.
func (that *GameController) MakeMove(game *entity.Game, row, col int) (entity.Outcome, error) {
	if err := validateMove(game, row, col); err != nil {
		return game.Outcome(), err
	}

	mark := game.CurrentPlayer
	game.Board[row][col] = mark

	return that.updateGameStatus(game, mark), nil
}

// validateMove - checks the preconditions in order, the first failure wins.
func validateMove(game *entity.Game, row, col int) error {
	if !game.IsActive {
		return apperror.ErrGameEnded
	}

	if row < 0 || row >= entity.BoardSize || col < 0 || col >= entity.BoardSize {
		return apperror.ErrInvalidMove
	}

	if game.Board[row][col] != entity.Empty {
		return apperror.ErrSpaceTaken
	}

	return nil
}

// updateGameStatus - only the mover can have completed a line, so only the mover is checked.
func (that *GameController) updateGameStatus(game *entity.Game, mark entity.Mark) entity.Outcome {
	switch {
	case game.Board.HasWon(mark):
		game.IsActive = false
		that.logger.Info("player wins", "mark", mark.String())

		return entity.Outcome{Result: entity.ResultWin, Winner: mark}
	case game.Board.IsFull():
		game.IsActive = false
		that.logger.Info("it's a draw")

		return entity.Outcome{Result: entity.ResultDraw}
	default:
		game.CurrentPlayer = mark.Opponent()

		return entity.Outcome{Result: entity.ResultOngoing}
	}
}
