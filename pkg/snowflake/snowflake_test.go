package snowflake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNodeRange(t *testing.T) {
	_, err := NewNode(-1)
	assert.Error(t, err)

	_, err = NewNode(1024)
	assert.Error(t, err)

	_, err = NewNode(0)
	assert.NoError(t, err)

	_, err = NewNode(1023)
	assert.NoError(t, err)
}

func TestGenerateStrictlyIncreasing(t *testing.T) {
	node, err := NewNode(1)
	require.NoError(t, err)

	prev := node.Generate()
	for i := 0; i < 10000; i++ {
		id := node.Generate()
		require.Greater(t, id, prev, "id %d not greater than predecessor", i)
		prev = id
	}
}

func TestGenerateUniqueUnderConcurrency(t *testing.T) {
	node, err := NewNode(2)
	require.NoError(t, err)

	const workers = 8
	const perWorker = 1000

	results := make(chan int64, workers*perWorker)
	for w := 0; w < workers; w++ {
		go func() {
			for i := 0; i < perWorker; i++ {
				results <- node.Generate()
			}
		}()
	}

	seen := make(map[int64]bool, workers*perWorker)
	for i := 0; i < workers*perWorker; i++ {
		id := <-results
		require.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
}

func TestTimeRoundTrip(t *testing.T) {
	node, err := NewNode(3)
	require.NoError(t, err)

	before := time.Now().Add(-time.Second)
	id := node.Generate()
	after := time.Now().Add(time.Second)

	ts := Time(id)
	assert.True(t, ts.After(before) && ts.Before(after), "decoded timestamp %v outside generation window", ts)
}
