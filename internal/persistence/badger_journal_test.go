package persistence

import (
	"testing"
	"time"

	"backpack-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalRoundTrip(t *testing.T) {
	journal, err := NewBadgerJournal(t.TempDir())
	require.NoError(t, err)
	defer journal.Close()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	entries := []models.JournalEntry{
		{Time: base, Kind: "ladderRebuilt", Generation: 1, Detail: "reference=105.00"},
		{Time: base.Add(time.Second), Kind: "orderPlaced", Generation: 1, ClientID: 0, Side: models.Bid, Price: 100, Quantity: 2},
		{Time: base.Add(2 * time.Second), Kind: "orderRecreated", Generation: 1, ClientID: 3, Side: models.Ask, Price: 106, Quantity: 1.9},
	}
	for _, e := range entries {
		require.NoError(t, journal.Record(e))
	}

	got, err := journal.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "ladderRebuilt", got[0].Kind)
	assert.Equal(t, "orderPlaced", got[1].Kind)
	assert.Equal(t, "orderRecreated", got[2].Kind)
	assert.Equal(t, 3, got[2].ClientID)
	assert.Equal(t, models.Ask, got[2].Side)
}

func TestJournalRecentHonorsLimit(t *testing.T) {
	journal, err := NewBadgerJournal(t.TempDir())
	require.NoError(t, err)
	defer journal.Close()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		require.NoError(t, journal.Record(models.JournalEntry{
			Time: base.Add(time.Duration(i) * time.Second),
			Kind: "orderPlaced", Generation: 1, ClientID: i,
		}))
	}

	got, err := journal.Recent(3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// 限额保留的是最新的条目，且保持时间升序
	assert.Equal(t, 7, got[0].ClientID)
	assert.Equal(t, 9, got[2].ClientID)
}

func TestJournalStampsMissingTime(t *testing.T) {
	journal, err := NewBadgerJournal(t.TempDir())
	require.NoError(t, err)
	defer journal.Close()

	require.NoError(t, journal.Record(models.JournalEntry{Kind: "forceClose", Generation: 2}))

	got, err := journal.Recent(1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Time.IsZero())
}

func TestNopJournal(t *testing.T) {
	var journal Journal = NopJournal{}

	require.NoError(t, journal.Record(models.JournalEntry{Kind: "orderPlaced"}))
	got, err := journal.Recent(5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, journal.Close())
}
