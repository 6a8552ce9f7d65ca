// Package session stores the per-chat pointer state: which record is
// current, whose turn it is, and whether the engine opponent is on. The
// record, not the session, is authoritative for board content; the only
// subtle requirement here is merge-preserve: a writer must never clobber
// fields it does not set, including fields this version of the code does
// not know about.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tengenlabs/tengen/internal/storage"
)

// Turn values stored in current_turn.
const (
	TurnBlack = 1
	TurnWhite = 2
)

// State is the decoded session for one chat target.
type State struct {
	GameID             string
	CurrentTurn        int
	EngineOpponentMode bool
}

// Patch is a partial update; nil fields are left untouched in the stored
// object.
type Patch struct {
	GameID             *string
	CurrentTurn        *int
	EngineOpponentMode *bool
}

// Store reads and writes session objects through the blob store.
type Store struct {
	blobs storage.Store
}

func NewStore(blobs storage.Store) *Store {
	return &Store{blobs: blobs}
}

// Load returns the session for a chat. A missing object yields the default
// state (no game, black to move, engine opponent off).
func (s *Store) Load(ctx context.Context, chat string) (State, error) {
	state := State{CurrentTurn: TurnBlack}

	raw, err := s.blobs.Get(ctx, storage.SessionPath(chat))
	if errors.Is(err, storage.ErrNotFound) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("load session: %w", err)
	}

	var stored map[string]interface{}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return state, fmt.Errorf("decode session: %w", err)
	}

	if v, ok := stored["game_id"].(string); ok {
		state.GameID = v
	}
	if v, ok := stored["current_turn"].(float64); ok {
		state.CurrentTurn = int(v)
	}
	if v, ok := stored["engine_opponent_mode"].(bool); ok {
		state.EngineOpponentMode = v
	}
	if state.CurrentTurn != TurnBlack && state.CurrentTurn != TurnWhite {
		state.CurrentTurn = TurnBlack
	}
	return state, nil
}

// Apply overlays the patch onto the stored object and writes it back with
// no-store cache control. Keys the patch does not set, known or unknown,
// survive the write.
func (s *Store) Apply(ctx context.Context, chat string, p Patch) error {
	stored := map[string]interface{}{}

	raw, err := s.blobs.Get(ctx, storage.SessionPath(chat))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("read session before update: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(raw, &stored); err != nil {
			// A corrupt session is replaced rather than wedging the chat.
			stored = map[string]interface{}{}
		}
	}

	if p.GameID != nil {
		stored["game_id"] = *p.GameID
	}
	if p.CurrentTurn != nil {
		stored["current_turn"] = *p.CurrentTurn
	}
	if p.EngineOpponentMode != nil {
		stored["engine_opponent_mode"] = *p.EngineOpponentMode
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.blobs.Put(ctx, storage.SessionPath(chat), data, storage.PutOptions{
		ContentType:  storage.ContentTypeJSON,
		CacheControl: storage.CacheSession,
	})
}

// SetGame points the session at a record and sets whose turn it is.
func (s *Store) SetGame(ctx context.Context, chat, gameID string, turn int) error {
	return s.Apply(ctx, chat, Patch{GameID: &gameID, CurrentTurn: &turn})
}

// SetTurn updates only whose turn it is.
func (s *Store) SetTurn(ctx context.Context, chat string, turn int) error {
	return s.Apply(ctx, chat, Patch{CurrentTurn: &turn})
}

// SetEngineMode flips the engine-opponent flag.
func (s *Store) SetEngineMode(ctx context.Context, chat string, on bool) error {
	return s.Apply(ctx, chat, Patch{EngineOpponentMode: &on})
}

// OpponentTurn returns the other side's turn value.
func OpponentTurn(turn int) int {
	if turn == TurnBlack {
		return TurnWhite
	}
	return TurnBlack
}

// TurnName renders the turn as the user-facing character (黑/白).
func TurnName(turn int) string {
	if turn == TurnWhite {
		return "白"
	}
	return "黑"
}
