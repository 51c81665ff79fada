package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/rocketscienceinc/tictactoe-program/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-program/internal/entity"
)

type gameRow struct {
	ID      string `db:"id"`
	Creator string `db:"creator"`
	Record  []byte `db:"record"`
}

type sqliteGame struct {
	db *sqlx.DB
}

// NewSQLiteGameRepository - stores games in the "games" table created by SQLiteStorage.Init.
func NewSQLiteGameRepository(db *sqlx.DB) GameRepository {
	return &sqliteGame{
		db: db,
	}
}

func (that *sqliteGame) Create(ctx context.Context, account *entity.Account) error {
	record, err := account.Game.MarshalBinary()
	if err != nil {
		return fmt.Errorf("could not marshal game: %w", err)
	}

	query := `INSERT INTO games (id, creator, record) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`

	result, err := that.db.ExecContext(ctx, query, account.ID, account.Creator, record)
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}

	if inserted == 0 {
		return fmt.Errorf("failed to create game: %w: %s", apperror.ErrGameAlreadyExists, account.ID)
	}

	return nil
}

func (that *sqliteGame) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	return that.load(ctx, that.db, id)
}

func (that *sqliteGame) Update(ctx context.Context, id string, apply func(game *entity.Game) error) (*entity.Account, error) {
	tx, err := that.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	account, err := that.load(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	game := account.Game
	if err = apply(&game); err != nil {
		return nil, err
	}

	record, err := game.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("could not marshal game: %w", err)
	}

	query := `UPDATE games SET record = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err = tx.ExecContext(ctx, query, record, id); err != nil {
		return nil, fmt.Errorf("failed to update game: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit game: %w", err)
	}

	account.Game = game

	return account, nil
}

func (that *sqliteGame) load(ctx context.Context, q sqlx.QueryerContext, id string) (*entity.Account, error) {
	var row gameRow

	err := sqlx.GetContext(ctx, q, &row, `SELECT id, creator, record FROM games WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrGameNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	account := &entity.Account{
		ID:      row.ID,
		Creator: row.Creator,
	}

	if err = account.Game.UnmarshalBinary(row.Record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game %s: %w", id, err)
	}

	return account, nil
}
