package idx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/stamp/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewProducesValidIDs(t *testing.T) {
	id := idx.New()
	require.False(t, id.IsZero())

	parsed, err := idx.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestNewIsMonotonicWithinSameMillisecond(t *testing.T) {
	at := time.Now().UTC()

	a := idx.NewAt(at)
	b := idx.NewAt(at)

	require.Less(t, a.String(), b.String())
}

func TestParseRejectsJunk(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"not-a-ulid",
		"0000000000000000000000000!", // invalid character
	}

	for _, tt := range tests {
		_, err := idx.Parse(tt)
		require.ErrorIs(t, err, idx.ErrInvalid)
	}
}

func TestIDTime(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	id := idx.NewAt(at)

	require.WithinDuration(t, at, id.Time(), time.Millisecond)
	require.True(t, idx.Zero.Time().IsZero())
}
