// Package storage implements the flat-file snapshot store backing the
// message history. The whole history is written as a single pretty-printed
// JSON document on every save.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pulsechat/pulsechat/internal/chat"
)

// FileStore reads and writes the message history at a fixed path. It
// implements chat.SnapshotStore.
type FileStore struct {
	path string
	log  *slog.Logger
}

// NewFileStore returns a store for the given file path. The file and its
// parent directory are created on the first save.
func NewFileStore(path string, log *slog.Logger) *FileStore {
	return &FileStore{path: path, log: log}
}

type snapshot struct {
	Messages []chat.Message `json:"messages"`
}

// Load reads the message history. A missing file is not an error; it returns
// an empty history.
func (f *FileStore) Load() ([]chat.Message, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.log.Info("no existing message history, starting fresh", "path", f.path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read message history: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode message history: %w", err)
	}
	return snap.Messages, nil
}

// Save writes the full history, replacing any previous snapshot.
func (f *FileStore) Save(messages []chat.Message) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	data, err := json.MarshalIndent(snapshot{Messages: messages}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode message history: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("write message history: %w", err)
	}
	return nil
}
