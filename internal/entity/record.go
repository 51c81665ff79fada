package entity

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-program/internal/apperror"
)

// RecordSize is the fixed size of a persisted game: 9 cell tags, the current player
// and the active flag, one byte each.
const RecordSize = BoardSize*BoardSize + 2

const (
	recordTurnOffset   = BoardSize * BoardSize
	recordActiveOffset = recordTurnOffset + 1
)

// MarshalBinary encodes the game into its fixed-size record, cells in row-major order.
func (that *Game) MarshalBinary() ([]byte, error) {
	record := make([]byte, RecordSize)

	for row := range that.Board {
		for col, cell := range that.Board[row] {
			if cell != Empty && !cell.IsPlayer() {
				return nil, fmt.Errorf("%w: cell (%d,%d) holds %d", ErrUnknownMark, row, col, cell)
			}
			record[row*BoardSize+col] = byte(cell)
		}
	}

	record[recordTurnOffset] = byte(that.CurrentPlayer)
	if that.IsActive {
		record[recordActiveOffset] = 1
	}

	return record, nil
}

// UnmarshalBinary decodes a record and rejects anything legal play could not produce.
// The receiver is only written when the record is valid.
func (that *Game) UnmarshalBinary(record []byte) error {
	if len(record) != RecordSize {
		return fmt.Errorf("%w: got %d bytes, want %d", apperror.ErrCorruptRecord, len(record), RecordSize)
	}

	var decoded Game
	for i, tag := range record[:recordTurnOffset] {
		decoded.Board[i/BoardSize][i%BoardSize] = Mark(tag)
	}
	decoded.CurrentPlayer = Mark(record[recordTurnOffset])

	switch record[recordActiveOffset] {
	case 0:
		decoded.IsActive = false
	case 1:
		decoded.IsActive = true
	default:
		return fmt.Errorf("%w: active flag %d", apperror.ErrCorruptRecord, record[recordActiveOffset])
	}

	if err := decoded.Validate(); err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrCorruptRecord, err)
	}

	*that = decoded

	return nil
}
