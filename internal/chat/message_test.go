package chat

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSnapshotStore records saves and can seed or fail the initial load.
type fakeSnapshotStore struct {
	initial []Message
	loadErr error
	saves   chan []Message
}

func newFakeSnapshotStore(initial []Message) *fakeSnapshotStore {
	return &fakeSnapshotStore{initial: initial, saves: make(chan []Message, 16)}
}

func (f *fakeSnapshotStore) Load() ([]Message, error) {
	return f.initial, f.loadErr
}

func (f *fakeSnapshotStore) Save(messages []Message) error {
	f.saves <- messages
	return nil
}

func newTestStore(t *testing.T) *MessageStore {
	t.Helper()
	store := NewMessageStore(nil, discardLogger())
	t.Cleanup(store.Close)
	return store
}

func Test_Create_Message_Appends_In_Order(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	store.CreateMessage("alice", "first")
	created := store.CreateMessage("alice", "second")

	all := store.AllMessages()
	req.Len(all, 2)

	last := all[len(all)-1]
	req.Equal(created.ID, last.ID)
	req.NotEmpty(last.ID)
	req.Equal("alice", last.Author)
	req.Equal("second", last.Content)
	req.Positive(last.Timestamp)
	req.Zero(last.Likes)
	req.Zero(last.Dislikes)
}

func Test_Toggle_Like_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	msg := store.CreateMessage("alice", "hello")

	liked, err := store.ToggleLike(msg.ID, "alice")
	req.NoError(err)
	req.Equal(1, liked.Likes)

	unliked, err := store.ToggleLike(msg.ID, "alice")
	req.NoError(err)
	req.Zero(unliked.Likes)
	req.Zero(unliked.Dislikes)
}

func Test_Like_Then_Dislike_Is_Mutually_Exclusive(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	msg := store.CreateMessage("alice", "hello")

	liked, err := store.ToggleLike(msg.ID, "bob")
	req.NoError(err)
	req.Equal(1, liked.Likes)

	disliked, err := store.ToggleDislike(msg.ID, "bob")
	req.NoError(err)
	req.Zero(disliked.Likes)
	req.Equal(1, disliked.Dislikes)
}

func Test_Toggle_Unknown_Message(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	_, err := store.ToggleLike("no-such-id", "alice")
	req.ErrorIs(err, ErrMessageNotFound)

	_, err = store.ToggleDislike("no-such-id", "alice")
	req.ErrorIs(err, ErrMessageNotFound)
}

func Test_Messages_After_Filters_Strictly(t *testing.T) {
	req := require.New(t)
	seeded := []Message{
		{ID: "m1", Author: "a", Content: "one", Timestamp: 100},
		{ID: "m2", Author: "a", Content: "two", Timestamp: 200},
		{ID: "m3", Author: "a", Content: "three", Timestamp: 300},
	}
	store := NewMessageStore(newFakeSnapshotStore(seeded), discardLogger())
	t.Cleanup(store.Close)

	after := store.MessagesAfter(150)
	req.Len(after, 2)
	req.Equal("m2", after[0].ID)
	req.Equal("m3", after[1].ID)

	req.Empty(store.MessagesAfter(300))
	req.Len(store.MessagesAfter(99), 3)
}

func Test_Mutation_Schedules_Save(t *testing.T) {
	req := require.New(t)
	fake := newFakeSnapshotStore(nil)
	store := NewMessageStore(fake, discardLogger())
	t.Cleanup(store.Close)

	store.CreateMessage("alice", "persist me")

	select {
	case snap := <-fake.saves:
		req.Len(snap, 1)
		req.Equal("persist me", snap[0].Content)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot save")
	}
}

func Test_Load_Failure_Starts_Empty(t *testing.T) {
	req := require.New(t)
	fake := newFakeSnapshotStore(nil)
	fake.loadErr = io.ErrUnexpectedEOF

	store := NewMessageStore(fake, discardLogger())
	t.Cleanup(store.Close)

	req.Empty(store.AllMessages())
}

func Test_Queries_Return_Copies(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	store.CreateMessage("alice", "hello")

	all := store.AllMessages()
	all[0].Content = "mutated"

	req.Equal("hello", store.AllMessages()[0].Content)
}
