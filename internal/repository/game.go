package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-program/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-program/internal/entity"
)

const (
	fieldRecord  = "record"
	fieldCreator = "creator"

	maxTxRetries = 16
)

var ErrTxConflict = errors.New("too many concurrent writers")

// GameRepository - Update hands apply a private copy of the stored game; an error from
// apply discards the copy. apply may run more than once when a concurrent writer forces a retry.
type GameRepository interface {
	Create(ctx context.Context, account *entity.Account) error
	GetByID(ctx context.Context, id string) (*entity.Account, error)
	Update(ctx context.Context, id string, apply func(game *entity.Game) error) (*entity.Account, error)
}

type dbGame struct {
	client *redis.Client
}

// NewGameRepository - stores every game as a hash under "game:<id>" holding the
// fixed-size record and the creator identity.
func NewGameRepository(client *redis.Client) GameRepository {
	return &dbGame{
		client: client,
	}
}

func gameKey(id string) string {
	return "game:" + id
}

func (that *dbGame) Create(ctx context.Context, account *entity.Account) error {
	record, err := account.Game.MarshalBinary()
	if err != nil {
		return fmt.Errorf("could not marshal game: %w", err)
	}

	key := gameKey(account.ID)

	err = that.watch(ctx, key, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to check game: %w", err)
		}

		if exists > 0 {
			return fmt.Errorf("%w: %s", apperror.ErrGameAlreadyExists, account.ID)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldRecord, record, fieldCreator, account.Creator)
			return nil
		})

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}

	return nil
}

func (that *dbGame) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	return that.load(ctx, that.client, id)
}

// Update - runs apply inside a WATCH/MULTI transaction, so two moves on the same game
// never interleave. A conflicting write makes the whole read-apply-write start over.
func (that *dbGame) Update(ctx context.Context, id string, apply func(game *entity.Game) error) (*entity.Account, error) {
	key := gameKey(id)

	var updated *entity.Account
	err := that.watch(ctx, key, func(tx *redis.Tx) error {
		account, err := that.load(ctx, tx, id)
		if err != nil {
			return err
		}

		game := account.Game
		if err = apply(&game); err != nil {
			return err
		}

		record, err := game.MarshalBinary()
		if err != nil {
			return fmt.Errorf("could not marshal game: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldRecord, record)
			return nil
		})
		if err != nil {
			return err
		}

		account.Game = game
		updated = account

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// hashReader is satisfied by both *redis.Client and *redis.Tx.
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func (that *dbGame) load(ctx context.Context, client hashReader, id string) (*entity.Account, error) {
	fields, err := client.HGetAll(ctx, gameKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	record, ok := fields[fieldRecord]
	if !ok {
		return nil, apperror.ErrGameNotFound
	}

	account := &entity.Account{
		ID:      id,
		Creator: fields[fieldCreator],
	}

	if err = account.Game.UnmarshalBinary([]byte(record)); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game %s: %w", id, err)
	}

	return account, nil
}

func (that *dbGame) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for range maxTxRetries {
		err := that.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return err
	}

	return ErrTxConflict
}
