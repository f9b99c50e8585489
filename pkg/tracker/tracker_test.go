package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTempIDMonotonic(t *testing.T) {
	tr := New()

	prev := tr.NextTempID()
	for i := 0; i < 1000; i++ {
		id := tr.NextTempID()
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestResolveSentAndFailed(t *testing.T) {
	tr := New()

	id1 := tr.NextTempID()
	id2 := tr.NextTempID()
	tr.Track(id1)
	tr.Track(id2)
	assert.Equal(t, 2, tr.Pending())

	st, ok := tr.Resolve(id1, 42)
	assert.True(t, ok)
	assert.Equal(t, StatusSent, st)

	st, ok = tr.Resolve(id2, 0)
	assert.True(t, ok)
	assert.Equal(t, StatusFailed, st)

	assert.Equal(t, 0, tr.Pending())
}

func TestUnmatchedAckIgnored(t *testing.T) {
	tr := New()

	// Never-tracked id.
	_, ok := tr.Resolve(12345, 42)
	assert.False(t, ok)

	// Duplicate ack.
	id := tr.NextTempID()
	tr.Track(id)
	_, ok = tr.Resolve(id, 42)
	require.True(t, ok)
	_, ok = tr.Resolve(id, 42)
	assert.False(t, ok)
}

func TestExpireMarksOverduePendingFailed(t *testing.T) {
	tr := New()
	current := time.Unix(1700000000, 0)
	tr.now = func() time.Time { return current }

	stale := tr.NextTempID()
	tr.Track(stale)

	current = current.Add(30 * time.Second)
	fresh := tr.NextTempID()
	tr.Track(fresh)

	expired := tr.Expire(10 * time.Second)
	require.Equal(t, []int64{stale}, expired)
	assert.Equal(t, 1, tr.Pending())

	// An ack arriving after local give-up is an unmatched resolve.
	_, ok := tr.Resolve(stale, 42)
	assert.False(t, ok)

	st, ok := tr.Resolve(fresh, 42)
	assert.True(t, ok)
	assert.Equal(t, StatusSent, st)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "sent", StatusSent.String())
	assert.Equal(t, "failed", StatusFailed.String())
}
