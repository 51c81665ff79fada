package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-program/internal/entity"
)

// EventsChannel is the pub/sub channel finished games are announced on.
const EventsChannel = "channel:events"

const (
	TypeGameWon  = "game_won"
	TypeGameDraw = "game_draw"
)

// Event is an advisory announcement. Nothing relies on it for correctness.
type Event struct {
	Type    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// GameFinishedPayload is the payload of "game_won" and "game_draw".
type GameFinishedPayload struct {
	GameID   string       `json:"game_id"`
	PlayerID string       `json:"player_id"`
	Winner   entity.Mark  `json:"winner,omitempty"`
	Board    entity.Board `json:"board"`
}

// NewGameFinished builds the event for a terminal outcome; ok is false for any other outcome.
func NewGameFinished(account *entity.Account, playerID string) (Event, bool, error) {
	outcome := account.Game.Outcome()

	var eventType string
	switch outcome.Result {
	case entity.ResultWin:
		eventType = TypeGameWon
	case entity.ResultDraw:
		eventType = TypeGameDraw
	default:
		return Event{}, false, nil
	}

	payload, err := json.Marshal(GameFinishedPayload{
		GameID:   account.ID,
		PlayerID: playerID,
		Winner:   outcome.Winner,
		Board:    account.Game.Board,
	})
	if err != nil {
		return Event{}, false, fmt.Errorf("could not marshal payload: %w", err)
	}

	return Event{Type: eventType, Payload: payload}, true, nil
}

type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (that *RedisPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not marshal event: %w", err)
	}

	if err = that.client.Publish(ctx, EventsChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	return nil
}

// LogPublisher writes events to the log, for hosts without a broker.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With("component", "events")}
}

func (that *LogPublisher) Publish(ctx context.Context, event Event) error {
	that.logger.InfoContext(ctx, "event", "type", event.Type, "payload", string(event.Payload))

	return nil
}
