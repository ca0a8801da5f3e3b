package engine

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Register creates a player and returns it with its credential token.
func (e *Engine) Register(ctx context.Context, name string) (Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Player{}, &Error{Code: CodeInvalidInput, Message: "Player name is required."}
	}
	token, err := newToken()
	if err != nil {
		return Player{}, wrapError(CodeStorage, "generate player token", err)
	}
	p := Player{ID: uuid.NewString(), Name: name, Token: token, CreatedAt: e.now()}
	if err := e.repo.CreatePlayer(ctx, p); err != nil {
		return Player{}, err
	}
	e.log.Printf("player registered id=%s", p.ID)
	return p, nil
}

// CreateGame opens a waiting game with the caller as first player.
func (e *Engine) CreateGame(ctx context.Context, token string) (Game, error) {
	player, err := e.authenticate(ctx, token)
	if err != nil {
		return Game{}, err
	}
	now := e.now()
	g := Game{
		ID:        uuid.NewString(),
		PlayerA:   player.ID,
		TurnOwner: player.ID,
		Status:    StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.repo.CreateGame(ctx, g); err != nil {
		return Game{}, err
	}
	e.log.Printf("game=%s player=%s op=create", g.ID, player.ID)
	e.publish(Event{GameID: g.ID, Kind: EventGameCreated, Player: player.ID, Version: g.Version, Payload: g})
	return g, nil
}

// JoinGame seats the caller in the oldest waiting game and starts it.
func (e *Engine) JoinGame(ctx context.Context, token string) (Game, error) {
	player, err := e.authenticate(ctx, token)
	if err != nil {
		return Game{}, err
	}
	g, err := e.repo.JoinWaitingGame(ctx, player.ID, e.now())
	if err != nil {
		return Game{}, err
	}
	e.log.Printf("game=%s player=%s op=join", g.ID, player.ID)
	e.publish(Event{GameID: g.ID, Kind: EventGameJoined, Player: player.ID, Version: g.Version, Payload: g})
	return g, nil
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := crand.Read(buf); err != nil {
		return "", fmt.Errorf("read token entropy: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
