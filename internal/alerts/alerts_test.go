package alerts

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSink_RecordsHistory(t *testing.T) {
	sink := NewLogSink(zerolog.Nop())

	sink.Alert(LevelWarning, "lock_sweeper", "cleanup spike")
	sink.Alert(LevelCritical, "feedback_update", "no threshold for audience")

	recent := sink.Recent()
	require.Len(t, recent, 2)

	assert.Equal(t, LevelWarning, recent[0].Level)
	assert.Equal(t, "lock_sweeper", recent[0].Source)
	assert.Equal(t, "cleanup spike", recent[0].Message)
	assert.False(t, recent[0].Timestamp.IsZero())

	assert.Equal(t, LevelCritical, recent[1].Level)
}

func TestLogSink_HistoryIsBounded(t *testing.T) {
	sink := NewLogSink(zerolog.Nop())

	for i := 0; i < 150; i++ {
		sink.Alert(LevelInfo, "test", fmt.Sprintf("alert %d", i))
	}

	recent := sink.Recent()
	require.Len(t, recent, 100)

	// Oldest entries are dropped first
	assert.Equal(t, "alert 50", recent[0].Message)
	assert.Equal(t, "alert 149", recent[99].Message)
}

func TestLogSink_RecentReturnsCopy(t *testing.T) {
	sink := NewLogSink(zerolog.Nop())
	sink.Alert(LevelInfo, "test", "original")

	recent := sink.Recent()
	recent[0].Message = "mutated"

	assert.Equal(t, "original", sink.Recent()[0].Message)
}
