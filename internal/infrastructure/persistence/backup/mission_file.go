// Package backup mirrors the daily mission map to a local JSON file.
package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
)

// DefaultPath is used when no path is configured.
const DefaultPath = "data/mission.json"

// MissionFile is a best-effort on-disk copy of every DailyMission keyed by
// user id. It is written after each reset and presence pass and never read
// back into the store.
type MissionFile struct {
	mu   sync.Mutex
	path string
}

// NewMissionFile returns a backup at path (DefaultPath when empty).
func NewMissionFile(path string) *MissionFile {
	if path == "" {
		path = DefaultPath
	}
	return &MissionFile{path: path}
}

// Path returns the file location.
func (f *MissionFile) Path() string {
	return f.path
}

// Load reads the backup. A missing file is an empty map.
func (f *MissionFile) Load() (map[string]*progression.DailyMission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]*progression.DailyMission{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mission backup: %w", err)
	}

	missions := map[string]*progression.DailyMission{}
	if len(data) == 0 {
		return missions, nil
	}
	if err := json.Unmarshal(data, &missions); err != nil {
		return nil, fmt.Errorf("decode mission backup: %w", err)
	}
	return missions, nil
}

// Save replaces the backup with missions via a temp file and rename.
func (f *MissionFile) Save(missions map[string]*progression.DailyMission) error {
	if missions == nil {
		missions = map[string]*progression.DailyMission{}
	}
	data, err := json.MarshalIndent(missions, "", "  ")
	if err != nil {
		return fmt.Errorf("encode mission backup: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".mission-*.json")
	if err != nil {
		return fmt.Errorf("create temp backup: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp backup: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace mission backup: %w", err)
	}
	return nil
}
