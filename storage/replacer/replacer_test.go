package replacer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Mirrors BusTub's LRUReplacerTest.SampleTest: re-unpinning a frame
// that is already evictable must not move it, so victims come back in
// the order frames were first unpinned, not last-touched order.
func TestSample(t *testing.T) {
	r := New()

	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)
	r.Unpin(4)
	r.Unpin(5)
	r.Unpin(4)
	assert.Equal(t, 5, r.Size())

	r.Pin(4)
	r.Pin(3)
	assert.Equal(t, 3, r.Size())

	r.Unpin(4)

	victim, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, 1, victim)

	victim, ok = r.Victim()
	assert.True(t, ok)
	assert.Equal(t, 2, victim)

	victim, ok = r.Victim()
	assert.True(t, ok)
	assert.Equal(t, 5, victim)

	r.Unpin(6)
	victim, ok = r.Victim()
	assert.True(t, ok)
	assert.Equal(t, 4, victim)

	victim, ok = r.Victim()
	assert.True(t, ok)
	assert.Equal(t, 6, victim)

	assert.Equal(t, 0, r.Size())
}

func TestVictimOnEmpty(t *testing.T) {
	r := New()
	_, ok := r.Victim()
	assert.False(t, ok)
}

func TestUnpinIdempotent(t *testing.T) {
	r := New()
	r.Unpin(7)
	r.Unpin(7)
	r.Unpin(7)
	assert.Equal(t, 1, r.Size())
}
