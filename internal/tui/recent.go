package tui

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const maxRecent = 10

// RecentEntry is a category the user browsed.
type RecentEntry struct {
	Slug     string    `json:"slug"`
	Name     string    `json:"name"`
	OpenedAt time.Time `json:"opened_at"`
}

// RecentStore keeps the most recently browsed categories in a JSON file.
type RecentStore struct {
	path string
}

func NewRecentStore(path string) *RecentStore {
	return &RecentStore{path: path}
}

// DefaultRecentPath is recent.json under the user config dir.
func DefaultRecentPath() string {
	cfg, err := os.UserConfigDir()
	if err != nil {
		cfg = os.TempDir()
	}
	return filepath.Join(cfg, "geodir", "recent.json")
}

func (s *RecentStore) Load() []RecentEntry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var entries []RecentEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	return entries
}

// Save moves slug to the front of the list.
func (s *RecentStore) Save(slug, name string, now time.Time) error {
	entries := s.Load()

	filtered := make([]RecentEntry, 0, len(entries)+1)
	filtered = append(filtered, RecentEntry{Slug: slug, Name: name, OpenedAt: now})
	for _, e := range entries {
		if e.Slug != slug {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) > maxRecent {
		filtered = filtered[:maxRecent]
	}

	data, err := json.MarshalIndent(filtered, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
