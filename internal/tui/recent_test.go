package tui

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecentStore(t *testing.T) {
	s := NewRecentStore(filepath.Join(t.TempDir(), "nested", "recent.json"))
	assert.Empty(t, s.Load())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save("housing", "Housing", now))
	require.NoError(t, s.Save("food", "Food", now.Add(time.Minute)))
	require.NoError(t, s.Save("housing", "Housing", now.Add(2*time.Minute)))

	got := s.Load()
	require.Len(t, got, 2)
	assert.Equal(t, "housing", got[0].Slug)
	assert.Equal(t, "food", got[1].Slug)
	assert.True(t, got[0].OpenedAt.Equal(now.Add(2*time.Minute)))
}

func TestRecentStoreCapped(t *testing.T) {
	s := NewRecentStore(filepath.Join(t.TempDir(), "recent.json"))
	now := time.Now()
	for i := range maxRecent + 3 {
		require.NoError(t, s.Save(fmt.Sprintf("c%d", i), "", now))
	}
	got := s.Load()
	require.Len(t, got, maxRecent)
	assert.Equal(t, fmt.Sprintf("c%d", maxRecent+2), got[0].Slug)
}
