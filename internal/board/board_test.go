package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCoord(t *testing.T, s string) Coord {
	t.Helper()
	c, err := ParseCoord(s)
	require.NoError(t, err, "coordinate %q", s)
	return c
}

func play(t *testing.T, b *Board, color Color, s string) *PlaceResult {
	t.Helper()
	res, err := b.Place(mustCoord(t, s), color)
	require.NoError(t, err, "placing %s at %s", color, s)
	return res
}

// allGroupsAlive scans every stone and asserts its group has a liberty.
func allGroupsAlive(t *testing.T, b *Board) {
	t.Helper()
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			co := Coord{Row: r, Col: c}
			if b.At(co) != Empty {
				assert.Greater(t, b.Liberties(co), 0, "group at %s has no liberties", co)
			}
		}
	}
}

func TestPlaceRejectsOccupiedPoint(t *testing.T) {
	b := New()
	play(t, b, Black, "D4")

	_, err := b.Place(mustCoord(t, "D4"), White)
	assert.ErrorIs(t, err, ErrOccupied)
	assert.Equal(t, Black, b.At(mustCoord(t, "D4")), "failed placement must not mutate")
}

func TestPlaceRejectsOffBoardAndBadColor(t *testing.T) {
	b := New()

	_, err := b.Place(Coord{Row: -1, Col: 3}, Black)
	assert.ErrorIs(t, err, ErrBadCoord)

	_, err = b.Place(mustCoord(t, "D4"), Empty)
	assert.ErrorIs(t, err, ErrBadCoord)
}

func TestSingleStoneCapture(t *testing.T) {
	b := New()

	// White in the corner, Black takes its two liberties.
	play(t, b, White, "A1")
	play(t, b, Black, "A2")
	res := play(t, b, Black, "B1")

	require.Len(t, res.Captured, 1)
	assert.Equal(t, mustCoord(t, "A1"), res.Captured[0])
	assert.Equal(t, Empty, b.At(mustCoord(t, "A1")))
	allGroupsAlive(t, b)
}

func TestGroupCapture(t *testing.T) {
	b := New()

	// Two-stone white group on the edge.
	play(t, b, White, "A1")
	play(t, b, White, "A2")
	play(t, b, Black, "B1")
	play(t, b, Black, "B2")
	res := play(t, b, Black, "A3")

	require.Len(t, res.Captured, 2)
	assert.Equal(t, Empty, b.At(mustCoord(t, "A1")))
	assert.Equal(t, Empty, b.At(mustCoord(t, "A2")))

	// A multi-stone capture never sets a ko-point.
	assert.Nil(t, b.KoPoint())
	allGroupsAlive(t, b)
}

func TestSuicideRejected(t *testing.T) {
	b := New()

	// A1 would have zero liberties and captures nothing.
	play(t, b, White, "A2")
	play(t, b, White, "B1")

	_, err := b.Place(mustCoord(t, "A1"), Black)
	assert.ErrorIs(t, err, ErrSuicide)
	assert.Equal(t, Empty, b.At(mustCoord(t, "A1")), "suicide must be reverted")
	allGroupsAlive(t, b)
}

func TestCapturingPlacementIsNotSuicide(t *testing.T) {
	b := New()

	// Same corner shape, but now white A2/B1 are themselves short of
	// liberties: black A1 captures and lives in the captured space.
	play(t, b, White, "A2")
	play(t, b, White, "B1")
	play(t, b, Black, "A3")
	play(t, b, Black, "B2")
	play(t, b, Black, "C1")

	res := play(t, b, Black, "A1")
	assert.Len(t, res.Captured, 2)
	assert.Equal(t, Black, b.At(mustCoord(t, "A1")))
	allGroupsAlive(t, b)
}

// TestKoCycle walks the full ko exchange: a one-stone capture that leaves
// the capturing stone with a single liberty forbids the immediate
// recapture, and playing elsewhere first makes it legal again.
func TestKoCycle(t *testing.T) {
	b := New()

	// Step 1: build the mirrored jaws around D5 and E5.
	play(t, b, Black, "D6")
	play(t, b, White, "E6")
	play(t, b, Black, "C5")
	play(t, b, White, "F5")
	play(t, b, Black, "D4")
	play(t, b, White, "E4")
	play(t, b, Black, "Q16")
	play(t, b, White, "D5") // one liberty at E5
	assert.Nil(t, b.KoPoint())

	// Step 2: black captures at E5 → ko-point at D5.
	res := play(t, b, Black, "E5")
	require.Len(t, res.Captured, 1)
	assert.Equal(t, mustCoord(t, "D5"), res.Captured[0])
	require.NotNil(t, b.KoPoint())
	assert.Equal(t, mustCoord(t, "D5"), *b.KoPoint())

	// Step 3: the immediate recapture is forbidden.
	_, err := b.Place(mustCoord(t, "D5"), White)
	assert.ErrorIs(t, err, ErrKoViolation)

	// Step 4: white plays elsewhere; the ko-point clears.
	play(t, b, White, "R16")
	assert.Nil(t, b.KoPoint())
	play(t, b, Black, "Q3")

	// Step 5: now the recapture succeeds and flips the ko.
	res, err = b.Place(mustCoord(t, "D5"), White)
	require.NoError(t, err)
	require.Len(t, res.Captured, 1)
	assert.Equal(t, mustCoord(t, "E5"), res.Captured[0])
	require.NotNil(t, b.KoPoint())
	assert.Equal(t, mustCoord(t, "E5"), *b.KoPoint())
	allGroupsAlive(t, b)
}

func TestNonKoCaptureClearsKoPoint(t *testing.T) {
	b := New()

	// Corner capture where the capturing stones keep several liberties:
	// one stone captured but the group has more than one liberty, so no ko.
	play(t, b, White, "A1")
	play(t, b, Black, "A2")
	play(t, b, Black, "B2")
	res := play(t, b, Black, "B1")

	require.Len(t, res.Captured, 1)
	assert.Nil(t, b.KoPoint())
}

func TestLibertyInvariantOverScriptedGame(t *testing.T) {
	b := New()
	moves := []struct {
		color Color
		at    string
	}{
		{Black, "D4"}, {White, "Q16"}, {Black, "Q4"}, {White, "D16"},
		{Black, "C14"}, {White, "C16"}, {Black, "F17"}, {White, "E17"},
		{Black, "F16"}, {White, "E15"}, {Black, "R14"}, {White, "O17"},
		{Black, "C6"}, {White, "C10"}, {Black, "F3"}, {White, "Q10"},
	}

	for _, m := range moves {
		play(t, b, m.color, m.at)
		allGroupsAlive(t, b)
	}
	assert.Equal(t, len(moves), b.StoneCount())
}

func TestRestoreOverwritesOccupiedPoint(t *testing.T) {
	b := New()
	play(t, b, Black, "D4")

	res := b.Restore(mustCoord(t, "D4"), White)
	assert.Equal(t, Black, res.Overwrote)
	assert.Equal(t, White, b.At(mustCoord(t, "D4")))
}

func TestRestoreKeepsSuicideStone(t *testing.T) {
	b := New()
	play(t, b, White, "A2")
	play(t, b, White, "B1")

	res := b.Restore(mustCoord(t, "A1"), Black)
	assert.True(t, res.Suicide)
	assert.Empty(t, res.Captured)
	assert.Equal(t, Black, b.At(mustCoord(t, "A1")), "historical stone stays on the board")
}

func TestRestoreStillCaptures(t *testing.T) {
	b := New()
	play(t, b, White, "A1")
	play(t, b, Black, "A2")

	res := b.Restore(mustCoord(t, "B1"), Black)
	require.Len(t, res.Captured, 1)
	assert.Equal(t, Empty, b.At(mustCoord(t, "A1")))
	assert.False(t, res.Suicide)
}

func TestCloneIsIndependent(t *testing.T) {
	b := New()
	play(t, b, Black, "D4")

	cp := b.Clone()
	play(t, cp, White, "Q16")

	assert.Equal(t, Empty, b.At(mustCoord(t, "Q16")))
	assert.Equal(t, White, cp.At(mustCoord(t, "Q16")))
}

func TestOpponent(t *testing.T) {
	assert.Equal(t, White, Black.Opponent())
	assert.Equal(t, Black, White.Opponent())
	assert.Equal(t, Empty, Empty.Opponent())
}
