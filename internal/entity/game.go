package entity

import (
	"errors"
	"fmt"
	"strings"
)

const BoardSize = 3

// Mark is the content of a cell, and also names whose turn it is.
type Mark uint8

const (
	Empty Mark = iota
	PlayerX
	PlayerO
)

var ErrUnknownMark = errors.New("unknown mark")

// WinLines holds the 3 rows, the 3 columns and both diagonals as (row, col) pairs.
var WinLines = [8][BoardSize][2]int{
	{{0, 0}, {0, 1}, {0, 2}},
	{{1, 0}, {1, 1}, {1, 2}},
	{{2, 0}, {2, 1}, {2, 2}},
	{{0, 0}, {1, 0}, {2, 0}},
	{{0, 1}, {1, 1}, {2, 1}},
	{{0, 2}, {1, 2}, {2, 2}},
	{{0, 0}, {1, 1}, {2, 2}},
	{{0, 2}, {1, 1}, {2, 0}},
}

func (m Mark) String() string {
	switch m {
	case PlayerX:
		return "X"
	case PlayerO:
		return "O"
	default:
		return ""
	}
}

// IsPlayer reports whether m is X or O.
func (m Mark) IsPlayer() bool {
	return m == PlayerX || m == PlayerO
}

func (m Mark) Opponent() Mark {
	switch m {
	case PlayerX:
		return PlayerO
	case PlayerO:
		return PlayerX
	default:
		return Empty
	}
}

func (m Mark) MarshalText() ([]byte, error) {
	if m != Empty && !m.IsPlayer() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMark, m)
	}

	return []byte(m.String()), nil
}

func (m *Mark) UnmarshalText(text []byte) error {
	switch string(text) {
	case "":
		*m = Empty
	case "X":
		*m = PlayerX
	case "O":
		*m = PlayerO
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMark, text)
	}

	return nil
}

type Board [BoardSize][BoardSize]Mark

// HasWon reports whether mark occupies a whole row, column or diagonal.
func (that *Board) HasWon(mark Mark) bool {
	if !mark.IsPlayer() {
		return false
	}

	for _, line := range WinLines {
		if that[line[0][0]][line[0][1]] == mark &&
			that[line[1][0]][line[1][1]] == mark &&
			that[line[2][0]][line[2][1]] == mark {
			return true
		}
	}

	return false
}

func (that *Board) IsFull() bool {
	for _, row := range that {
		for _, cell := range row {
			if cell == Empty {
				return false
			}
		}
	}

	return true
}

func (that *Board) Count(mark Mark) int {
	count := 0
	for _, row := range that {
		for _, cell := range row {
			if cell == mark {
				count++
			}
		}
	}

	return count
}

// Game is the persisted state of one match.
type Game struct {
	Board         Board `json:"board"`
	CurrentPlayer Mark  `json:"current_player"`
	IsActive      bool  `json:"is_active"`
}

// NewGame returns a game ready for its first move: empty board, X to play.
func NewGame() *Game {
	return &Game{
		Board:         Board{},
		CurrentPlayer: PlayerX,
		IsActive:      true,
	}
}

type Result string

const (
	ResultUninitialized Result = "uninitialized"
	ResultOngoing       Result = "ongoing"
	ResultWin           Result = "win"
	ResultDraw          Result = "draw"
)

type Outcome struct {
	Result Result `json:"result"`
	Winner Mark   `json:"winner,omitempty"`
}

func (that Outcome) IsFinished() bool {
	return that.Result == ResultWin || that.Result == ResultDraw
}

// Outcome derives the state machine position from the record alone. The turn is not
// switched on a terminal move, so a won game still names the winner as CurrentPlayer.
func (that *Game) Outcome() Outcome {
	switch {
	case that.IsActive:
		return Outcome{Result: ResultOngoing}
	case that.Board.HasWon(that.CurrentPlayer):
		return Outcome{Result: ResultWin, Winner: that.CurrentPlayer}
	case that.Board.IsFull():
		return Outcome{Result: ResultDraw}
	default:
		return Outcome{Result: ResultUninitialized}
	}
}

// Validate checks that the game is a position reachable by legal play from NewGame.
func (that *Game) Validate() error {
	for row := range that.Board {
		for col, cell := range that.Board[row] {
			if cell != Empty && !cell.IsPlayer() {
				return fmt.Errorf("%w: cell (%d,%d) holds %d", ErrUnknownMark, row, col, cell)
			}
		}
	}

	if !that.CurrentPlayer.IsPlayer() {
		return fmt.Errorf("%w: current player %d", ErrUnknownMark, that.CurrentPlayer)
	}

	diff := that.Board.Count(PlayerX) - that.Board.Count(PlayerO)
	if diff != 0 && diff != 1 {
		return fmt.Errorf("unbalanced board: X leads O by %d", diff)
	}

	// while active CurrentPlayer is the next mover, once finished it is the last one
	lastMover := PlayerO
	if diff == 1 {
		lastMover = PlayerX
	}

	if that.IsActive {
		if that.CurrentPlayer != lastMover.Opponent() {
			return fmt.Errorf("%s to move on a board where %s moved last", that.CurrentPlayer, lastMover)
		}
		if that.Board.HasWon(PlayerX) || that.Board.HasWon(PlayerO) {
			return errors.New("active game has a completed line")
		}
		if that.Board.IsFull() {
			return errors.New("active game has a full board")
		}

		return nil
	}

	if that.CurrentPlayer != lastMover {
		return fmt.Errorf("finished game names %s but %s moved last", that.CurrentPlayer, lastMover)
	}
	if that.Board.HasWon(that.CurrentPlayer.Opponent()) {
		return fmt.Errorf("finished game has a line for %s", that.CurrentPlayer.Opponent())
	}
	if !that.Board.HasWon(that.CurrentPlayer) && !that.Board.IsFull() {
		return errors.New("inactive game is neither won nor drawn")
	}

	return nil
}

// String renders the board one row per line, "." for empty cells.
func (that *Game) String() string {
	var sb strings.Builder
	for row := range that.Board {
		for col, cell := range that.Board[row] {
			if col > 0 {
				sb.WriteByte(' ')
			}
			if cell == Empty {
				sb.WriteByte('.')
			} else {
				sb.WriteString(cell.String())
			}
		}
		sb.WriteByte('\n')
	}

	return sb.String()
}
