package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUReplacer_EmptyVictim(t *testing.T) {
	r := NewLRUReplacer(4)
	_, ok := r.Victim()
	require.False(t, ok)
	require.Equal(t, 0, r.Size())
}

func TestLRUReplacer_VictimOrder(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)
	require.Equal(t, 3, r.Size())

	frame, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, 1, frame, "oldest unpin should be evicted first")

	frame, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, 2, frame)

	frame, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, 3, frame)

	_, ok = r.Victim()
	require.False(t, ok)
}

func TestLRUReplacer_PinRemoves(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)
	require.Equal(t, 1, r.Size())

	frame, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, 2, frame, "pinned frame must not be returned as a victim")
}

func TestLRUReplacer_PinAbsentIsNoop(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Pin(42) // no panic, no effect
	require.Equal(t, 0, r.Size())
}

func TestLRUReplacer_UnpinIdempotent(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(1)
	r.Unpin(1) // already present: no-op, does not move or duplicate
	require.Equal(t, 1, r.Size())
}

func TestLRUReplacer_ReenterAfterPinCountsAsNewest(t *testing.T) {
	// S5-style scenario: fetch A, B, C then unpin all in order A, B, C.
	// Re-fetching B (Pin) removes it from the replacer; a subsequent
	// Unpin(B) must put it back at the most-recently-used end, not its
	// old position.
	r := NewLRUReplacer(4)
	r.Unpin(0) // A
	r.Unpin(1) // B
	r.Unpin(2) // C

	r.Pin(1) // re-fetch B
	r.Unpin(1)

	frame, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, 0, frame, "A is now the oldest")

	frame, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, 2, frame, "C is older than the re-entered B")

	frame, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, 1, frame)
}
