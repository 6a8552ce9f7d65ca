package session

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tengenlabs/tengen/internal/storage"
)

func TestLoadMissingSessionReturnsDefaults(t *testing.T) {
	store := NewStore(storage.NewMemory("tengen-test"))

	state, err := store.Load(context.Background(), "U1")
	require.NoError(t, err)

	assert.Empty(t, state.GameID)
	assert.Equal(t, TurnBlack, state.CurrentTurn)
	assert.False(t, state.EngineOpponentMode)
}

func TestApplyRoundTrip(t *testing.T) {
	blobs := storage.NewMemory("tengen-test")
	store := NewStore(blobs)
	ctx := context.Background()

	require.NoError(t, store.SetGame(ctx, "U1", "game_1712345678", TurnWhite))

	state, err := store.Load(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "game_1712345678", state.GameID)
	assert.Equal(t, TurnWhite, state.CurrentTurn)
	assert.False(t, state.EngineOpponentMode)

	// Session objects must never be cached.
	assert.Equal(t, storage.CacheSession, blobs.CacheControl(storage.SessionPath("U1")))
}

func TestApplyPreservesUnsetKnownFields(t *testing.T) {
	store := NewStore(storage.NewMemory("tengen-test"))
	ctx := context.Background()

	require.NoError(t, store.SetEngineMode(ctx, "U1", true))
	require.NoError(t, store.SetGame(ctx, "U1", "game_42", TurnBlack))
	require.NoError(t, store.SetTurn(ctx, "U1", TurnWhite))

	state, err := store.Load(ctx, "U1")
	require.NoError(t, err)
	assert.True(t, state.EngineOpponentMode, "engine mode must survive game and turn writes")
	assert.Equal(t, "game_42", state.GameID)
	assert.Equal(t, TurnWhite, state.CurrentTurn)
}

func TestApplyPreservesUnknownKeys(t *testing.T) {
	blobs := storage.NewMemory("tengen-test")
	store := NewStore(blobs)
	ctx := context.Background()

	// A future version wrote a field this code does not model.
	seed := []byte(`{"game_id":"game_1","current_turn":1,"handicap_offer":3}`)
	require.NoError(t, blobs.Put(ctx, storage.SessionPath("U1"), seed, storage.PutOptions{
		ContentType:  storage.ContentTypeJSON,
		CacheControl: storage.CacheSession,
	}))

	require.NoError(t, store.SetTurn(ctx, "U1", TurnWhite))

	raw, err := blobs.Get(ctx, storage.SessionPath("U1"))
	require.NoError(t, err)
	var stored map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &stored))

	assert.Equal(t, float64(3), stored["handicap_offer"], "unknown keys must survive a write")
	assert.Equal(t, float64(TurnWhite), stored["current_turn"])
	assert.Equal(t, "game_1", stored["game_id"])
}

func TestLoadNormalizesBadTurn(t *testing.T) {
	blobs := storage.NewMemory("tengen-test")
	store := NewStore(blobs)
	ctx := context.Background()

	seed := []byte(`{"game_id":"game_1","current_turn":9}`)
	require.NoError(t, blobs.Put(ctx, storage.SessionPath("U1"), seed, storage.PutOptions{}))

	state, err := store.Load(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, TurnBlack, state.CurrentTurn)
}

func TestTurnHelpers(t *testing.T) {
	assert.Equal(t, TurnWhite, OpponentTurn(TurnBlack))
	assert.Equal(t, TurnBlack, OpponentTurn(TurnWhite))
	assert.Equal(t, "黑", TurnName(TurnBlack))
	assert.Equal(t, "白", TurnName(TurnWhite))
}
