package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/opsforge/remedy-engine/internal/knowledge"
	"github.com/opsforge/remedy-engine/internal/learning"
)

// FileSnapshots persists the knowledge graph and Q-table as JSON files.
// Writes go through a temp file plus rename so a crash mid-write never leaves
// a truncated snapshot behind.
type FileSnapshots struct {
	knowledgePath string
	qtablePath    string
}

// NewFileSnapshots constructs a snapshot store over the given paths.
func NewFileSnapshots(knowledgePath, qtablePath string) *FileSnapshots {
	return &FileSnapshots{knowledgePath: knowledgePath, qtablePath: qtablePath}
}

// SaveKnowledge writes the graph snapshot.
func (f *FileSnapshots) SaveKnowledge(snap knowledge.Snapshot) error {
	return writeJSONAtomic(f.knowledgePath, snap)
}

// LoadKnowledge reads the graph snapshot. A missing file returns ok=false
// without error so first boot starts empty.
func (f *FileSnapshots) LoadKnowledge() (knowledge.Snapshot, bool, error) {
	var snap knowledge.Snapshot
	ok, err := readJSON(f.knowledgePath, &snap)
	return snap, ok, err
}

// SaveQTable writes the agent snapshot.
func (f *FileSnapshots) SaveQTable(snap learning.QSnapshot) error {
	return writeJSONAtomic(f.qtablePath, snap)
}

// LoadQTable reads the agent snapshot. A missing file returns ok=false without
// error.
func (f *FileSnapshots) LoadQTable() (learning.QSnapshot, bool, error) {
	var snap learning.QSnapshot
	ok, err := readJSON(f.qtablePath, &snap)
	return snap, ok, err
}

func writeJSONAtomic(path string, v any) error {
	if path == "" {
		return fmt.Errorf("snapshot path not configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func readJSON(path string, out any) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("snapshot path not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode snapshot: %w", err)
	}
	return true, nil
}
