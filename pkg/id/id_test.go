package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Not parallel: NewAt with a past timestamp resets the monotonic entropy.
func TestNewIsMonotonic(t *testing.T) {
	prev := New()
	for i := 0; i < 1000; i++ {
		next := New()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestNewAtRoundTripsTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	got, err := Time(NewAt(at))
	require.NoError(t, err)
	assert.True(t, got.Equal(at), "got %s want %s", got, at)
}

func TestTimeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Time("not-a-ulid")
	assert.Error(t, err)
}
