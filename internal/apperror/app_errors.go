package apperror

import "errors"

// move rejections, returned by the game controller.
var (
	ErrGameEnded   = errors.New("the game has already ended")
	ErrInvalidMove = errors.New("the move is invalid")
	ErrSpaceTaken  = errors.New("the space is already taken")
)

var (
	ErrGameNotFound      = errors.New("game not found")
	ErrGameAlreadyExists = errors.New("game already exists")
	ErrCorruptRecord     = errors.New("corrupt game record")
	ErrInvalidRequest    = errors.New("invalid request")
)
