package storage

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsechat/pulsechat/internal/chat"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Test_Save_And_Load_Roundtrip(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "data", "messages.json")
	store := NewFileStore(path, discardLogger())

	messages := []chat.Message{
		{ID: "m1", Author: "alice", Content: "hello", Timestamp: 100, Likes: 2, Dislikes: 1},
		{ID: "m2", Author: "bob", Content: "hi", Timestamp: 200},
	}

	// Save creates the parent directory on demand.
	req.NoError(store.Save(messages))

	loaded, err := store.Load()
	req.NoError(err)
	req.Equal(messages, loaded)
}

func Test_Load_Missing_File_Starts_Fresh(t *testing.T) {
	req := require.New(t)
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.json"), discardLogger())

	loaded, err := store.Load()
	req.NoError(err)
	req.Empty(loaded)
}

func Test_Load_Corrupt_File(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "messages.json")
	req.NoError(os.WriteFile(path, []byte("not json"), 0o644))

	store := NewFileStore(path, discardLogger())
	_, err := store.Load()
	req.Error(err)
}

func Test_Save_Replaces_Previous_Snapshot(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "messages.json")
	store := NewFileStore(path, discardLogger())

	req.NoError(store.Save([]chat.Message{{ID: "m1", Timestamp: 1}}))
	req.NoError(store.Save([]chat.Message{{ID: "m2", Timestamp: 2}}))

	loaded, err := store.Load()
	req.NoError(err)
	req.Len(loaded, 1)
	req.Equal("m2", loaded[0].ID)
}
