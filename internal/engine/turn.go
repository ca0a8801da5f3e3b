// Package engine implements the rules and turn state machine of a two-player
// column race dice game.
package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "climb/internal/engine"

// Options configures an Engine. Zero values pick defaults.
type Options struct {
	Catalog    *Catalog
	LockMode   LockMode
	Source     Source
	Logger     *log.Logger
	Timeout    time.Duration
	Publishers []Publisher
	Now        func() time.Time
}

// Engine runs turn transitions against a Repository. It holds no game state
// itself; every transition is one Repository.UpdateGame call. A game's
// transitions commit and publish their events one at a time, so subscribers
// see them in commit order.
type Engine struct {
	repo       Repository
	locks      *GameLocks
	rules      *Rules
	roller     *Roller
	log        *log.Logger
	timeout    time.Duration
	publishers []Publisher
	now        func() time.Time
	tracer     trace.Tracer
}

func New(repo Repository, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		repo:       repo,
		locks:      NewGameLocks(),
		rules:      NewRules(opts.Catalog, opts.LockMode),
		roller:     NewRoller(opts.Source),
		log:        logger,
		timeout:    opts.Timeout,
		publishers: opts.Publishers,
		now:        now,
		tracer:     otel.Tracer(tracerName),
	}
}

// Rules exposes the playability rules the engine evaluates with.
func (e *Engine) Rules() *Rules { return e.rules }

// Selection picks one pairing of the pending roll. Columns optionally
// restricts the advance to some of the pairing's sums; empty means both.
type Selection struct {
	Option  int
	Columns []int
}

// RollResult is the outcome of a roll. Bust is a regular result, not an error.
type RollResult struct {
	GameID   string              `json:"game_id"`
	Player   string              `json:"player"`
	Dice     Dice                `json:"dice"`
	Pairings [3]AnnotatedPairing `json:"pairings"`
	Bust     bool                `json:"bust"`
	NextTurn string              `json:"next_turn"`
}

func (r RollResult) Message() string {
	if r.Bust {
		return "Bust! No valid columns available to place markers. Turn passes to the other player."
	}
	return "Dice rolled successfully. Choose a pair to advance."
}

// AdvanceResult reports per-column outcomes of an advance.
type AdvanceResult struct {
	GameID         string          `json:"game_id"`
	Player         string          `json:"player"`
	Option         int             `json:"option"`
	Outcomes       []ColumnOutcome `json:"outcomes"`
	Ledger         map[int]int     `json:"ledger"`
	GameCompleted  bool            `json:"game_completed"`
	Winner         string          `json:"winner,omitempty"`
	WinningColumns []int           `json:"winning_columns,omitempty"`
}

func (r AdvanceResult) Message() string {
	if r.GameCompleted {
		return winMessage(r.WinningColumns)
	}
	return joinOutcomes(r.Outcomes)
}

// StopResult reports the commit of a turn's ledger.
type StopResult struct {
	GameID         string          `json:"game_id"`
	Player         string          `json:"player"`
	Outcomes       []ColumnOutcome `json:"outcomes"`
	NextTurn       string          `json:"next_turn,omitempty"`
	GameCompleted  bool            `json:"game_completed"`
	Winner         string          `json:"winner,omitempty"`
	WinningColumns []int           `json:"winning_columns,omitempty"`
}

func (r StopResult) Message() string {
	if r.GameCompleted {
		return winMessage(r.WinningColumns)
	}
	const ended = "Turn ended. Your progress is locked in, and it's now the other player's turn."
	if len(r.Outcomes) == 0 {
		return ended
	}
	return joinOutcomes(r.Outcomes) + " " + ended
}

func winMessage(cols []int) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprint(c)
	}
	return fmt.Sprintf("You have won the game with columns %s! Congratulations!", strings.Join(parts, ", "))
}

func joinOutcomes(outcomes []ColumnOutcome) string {
	msgs := make([]string, len(outcomes))
	for i, o := range outcomes {
		msgs[i] = o.Message()
	}
	return strings.Join(msgs, " ")
}

// Roll rolls four dice for the turn owner and evaluates the pairings. When
// no pairing is playable the turn busts within the same atomic unit.
func (e *Engine) Roll(ctx context.Context, gameID, token string) (RollResult, error) {
	ctx, span, done := e.begin(ctx, "roll", gameID)
	var (
		res RollResult
		err error
	)
	defer func() { done(err) }()

	player, err := e.authenticate(ctx, token)
	if err != nil {
		return res, err
	}
	span.SetAttributes(attribute.String("player.id", player.ID))

	unlock := e.locks.Lock(gameID)
	defer unlock()
	var version int64
	err = e.repo.UpdateGame(ctx, gameID, func(s *State) error {
		if err := requireTurn(s, player.ID); err != nil {
			return err
		}
		if _, pending := s.PendingRoll(player.ID); pending {
			return ErrAlreadyRolled
		}
		version = s.Game.Version + 1

		dice := e.roller.Roll()
		pairings := Pairings(dice)
		annotated := e.rules.Evaluate(s, player.ID, pairings)
		bust := Busted(annotated)

		s.Rolls[player.ID] = &RollRecord{
			Dice:       dice,
			Pairings:   pairings,
			HasPending: !bust,
			RolledAt:   e.now(),
		}
		if bust {
			s.discardLedger(player.ID)
			s.Game.TurnOwner = s.Game.Other(player.ID)
		}
		s.Game.UpdatedAt = e.now()

		res = RollResult{
			GameID:   gameID,
			Player:   player.ID,
			Dice:     dice,
			Pairings: annotated,
			Bust:     bust,
			NextTurn: s.Game.TurnOwner,
		}
		return nil
	})
	if err != nil {
		return RollResult{}, err
	}

	kind := EventRolled
	if res.Bust {
		kind = EventBust
	}
	e.log.Printf("game=%s player=%s op=roll dice=%v bust=%t", gameID, player.ID, res.Dice, res.Bust)
	e.publish(Event{GameID: gameID, Kind: kind, Player: player.ID, Version: version, Payload: res})
	return res, nil
}

// Advance applies the chosen pairing to the turn ledger. Columns that cannot
// take progress are reported individually while the others still apply.
func (e *Engine) Advance(ctx context.Context, gameID, token string, sel Selection) (AdvanceResult, error) {
	ctx, span, done := e.begin(ctx, "advance", gameID)
	var (
		res AdvanceResult
		err error
	)
	defer func() { done(err) }()

	player, err := e.authenticate(ctx, token)
	if err != nil {
		return res, err
	}
	span.SetAttributes(attribute.String("player.id", player.ID), attribute.Int("option", sel.Option))

	unlock := e.locks.Lock(gameID)
	defer unlock()
	var version int64
	err = e.repo.UpdateGame(ctx, gameID, func(s *State) error {
		if err := requireTurn(s, player.ID); err != nil {
			return err
		}
		roll, pending := s.PendingRoll(player.ID)
		if !pending {
			return ErrNoPendingRoll
		}
		if sel.Option < 1 || sel.Option > len(roll.Pairings) {
			return ErrInvalidOption
		}
		groups, err := chosenColumns(roll.Pairings[sel.Option-1], sel.Columns)
		if err != nil {
			return err
		}

		outcomes, lockedAny, advanced := e.applyAdvance(s, player.ID, groups)
		if !advanced {
			return &Error{Code: CodeNoValidColumns, Message: ErrNoValidColumns.Message + " " + joinOutcomes(outcomes)}
		}
		roll.HasPending = false
		s.Game.UpdatedAt = e.now()
		version = s.Game.Version + 1

		res = AdvanceResult{GameID: gameID, Player: player.ID, Option: sel.Option, Outcomes: outcomes}
		if lockedAny {
			if cols := s.checkWin(player.ID); cols != nil {
				s.discardLedger(player.ID)
				res.GameCompleted = true
				res.Winner = player.ID
				res.WinningColumns = cols
			}
		}
		res.Ledger = s.Ledger[player.ID].clone()
		return nil
	})
	if err != nil {
		return AdvanceResult{}, err
	}

	e.log.Printf("game=%s player=%s op=advance option=%d outcomes=%d completed=%t", gameID, player.ID, sel.Option, len(res.Outcomes), res.GameCompleted)
	e.publish(Event{GameID: gameID, Kind: EventAdvanced, Player: player.ID, Version: version, Payload: res})
	if res.GameCompleted {
		e.publish(Event{GameID: gameID, Kind: EventGameEnded, Player: player.ID, Version: version, Payload: res})
	}
	return res, nil
}

// Stop commits the turn ledger, checks for a win and passes the turn.
func (e *Engine) Stop(ctx context.Context, gameID, token string) (StopResult, error) {
	ctx, span, done := e.begin(ctx, "stop", gameID)
	var (
		res StopResult
		err error
	)
	defer func() { done(err) }()

	player, err := e.authenticate(ctx, token)
	if err != nil {
		return res, err
	}
	span.SetAttributes(attribute.String("player.id", player.ID))

	unlock := e.locks.Lock(gameID)
	defer unlock()
	var version int64
	err = e.repo.UpdateGame(ctx, gameID, func(s *State) error {
		if err := requireTurn(s, player.ID); err != nil {
			return err
		}
		if _, pending := s.PendingRoll(player.ID); pending {
			return ErrPendingRoll
		}
		version = s.Game.Version + 1

		res = StopResult{GameID: gameID, Player: player.ID}
		res.Outcomes = s.commitLedger(player.ID, e.rules.Catalog)
		s.Game.UpdatedAt = e.now()
		if cols := s.checkWin(player.ID); cols != nil {
			res.GameCompleted = true
			res.Winner = player.ID
			res.WinningColumns = cols
			return nil
		}
		s.Game.TurnOwner = s.Game.Other(player.ID)
		res.NextTurn = s.Game.TurnOwner
		return nil
	})
	if err != nil {
		return StopResult{}, err
	}

	e.log.Printf("game=%s player=%s op=stop columns=%d completed=%t", gameID, player.ID, len(res.Outcomes), res.GameCompleted)
	e.publish(Event{GameID: gameID, Kind: EventStopped, Player: player.ID, Version: version, Payload: res})
	if res.GameCompleted {
		e.publish(Event{GameID: gameID, Kind: EventGameEnded, Player: player.ID, Version: version, Payload: res})
	}
	return res, nil
}

// columnGroup is one column of a selection and how many steps it advances.
type columnGroup struct {
	column int
	count  int
}

// chosenColumns resolves a selection against pairing p. Equal sums collapse
// into one group with count 2.
func chosenColumns(p Pairing, requested []int) ([]columnGroup, error) {
	sums := p.Sums()
	if len(requested) > 0 {
		remaining := append([]int(nil), sums...)
		picked := make([]int, 0, len(requested))
		for _, c := range requested {
			idx := indexOf(remaining, c)
			if idx < 0 {
				return nil, &Error{Code: CodeInvalidInput, Message: fmt.Sprintf("Column %d is not part of option %d.", c, p.Option)}
			}
			remaining = append(remaining[:idx], remaining[idx+1:]...)
			picked = append(picked, c)
		}
		sums = picked
	}
	var groups []columnGroup
	for _, c := range sums {
		found := false
		for i := range groups {
			if groups[i].column == c {
				groups[i].count++
				found = true
			}
		}
		if !found {
			groups = append(groups, columnGroup{column: c, count: 1})
		}
	}
	return groups, nil
}

func indexOf(xs []int, v int) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}

// applyAdvance runs the ledger advance for each group. It reports whether
// any column locked and whether anything advanced at all.
func (e *Engine) applyAdvance(s *State, player string, groups []columnGroup) ([]ColumnOutcome, bool, bool) {
	outcomes := make([]ColumnOutcome, 0, len(groups))
	lockedAny, advanced := false, false
	for _, g := range groups {
		if status := e.rules.columnStatus(s, player, g.column); status != "" {
			o := ColumnOutcome{Column: g.column, Status: status, Progress: s.progressOf(player, g.column).Progress}
			if status == ColumnAlreadyWon {
				o.Owner, _ = s.LockedBy(g.column)
			}
			outcomes = append(outcomes, o)
			continue
		}
		if !s.advanceLedger(player, g.column, g.count) {
			outcomes = append(outcomes, ColumnOutcome{Column: g.column, Status: ColumnSkipped})
			continue
		}
		advanced = true

		col, _ := e.rules.Catalog.Lookup(g.column)
		temp := s.Ledger[player][g.column]
		combined := s.progressOf(player, g.column).Progress + temp
		if e.rules.LockMode == LockImmediate && combined >= col.MaxHeight {
			// The ledger entry stays so the column keeps its slot; commit
			// skips it because it is now locked.
			p, _ := s.credit(player, col, col.MaxHeight-s.progressOf(player, g.column).Progress)
			outcomes = append(outcomes, ColumnOutcome{Column: g.column, Status: ColumnLocked, Progress: p.Progress, Owner: player})
			lockedAny = true
			continue
		}
		if combined > col.MaxHeight {
			combined = col.MaxHeight
		}
		outcomes = append(outcomes, ColumnOutcome{Column: g.column, Status: ColumnAdvanced, Progress: combined})
	}
	return outcomes, lockedAny, advanced
}

func requireTurn(s *State, player string) error {
	if !s.Game.HasPlayer(player) {
		return ErrNotYourTurn
	}
	if s.Game.Status != StatusInProgress {
		return ErrNotInProgress
	}
	if s.Game.TurnOwner != player {
		return ErrNotYourTurn
	}
	return nil
}

func (e *Engine) authenticate(ctx context.Context, token string) (Player, error) {
	if strings.TrimSpace(token) == "" {
		return Player{}, &Error{Code: CodeInvalidInput, Message: "Game ID and player token are required."}
	}
	return e.repo.PlayerByToken(ctx, token)
}

// begin starts the span and the storage deadline for one transition.
func (e *Engine) begin(ctx context.Context, op, gameID string) (context.Context, trace.Span, func(error)) {
	ctx, span := e.tracer.Start(ctx, "engine."+op, trace.WithAttributes(
		attribute.String("game.id", gameID),
	))
	cancel := func() {}
	if e.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	return ctx, span, func(err error) {
		cancel()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(CodeOf(err)))
			e.log.Printf("game=%s op=%s rejected=%s err=%v", gameID, op, CodeOf(err), err)
		}
		span.End()
	}
}

func (e *Engine) publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	for _, p := range e.publishers {
		p.Publish(ev)
	}
}
