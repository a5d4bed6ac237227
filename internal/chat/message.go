// Package chat owns the domain state of the service: the ordered message
// history with per-message reaction sets, and the registry of joined users.
// Both stores are explicitly constructed and safe for concurrent use.
package chat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Message is a single chat message. Likes and Dislikes are always derived
// from the reaction sets and never settable directly.
type Message struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Likes     int    `json:"likes"`
	Dislikes  int    `json:"dislikes"`
}

// SnapshotStore persists the full message history. Reaction-set membership is
// not part of the snapshot; only the derived counts on each Message survive a
// restart.
type SnapshotStore interface {
	Load() ([]Message, error)
	Save(messages []Message) error
}

// reactionSet tracks which usernames currently like or dislike one message.
// A username appears in at most one of the two sets.
type reactionSet struct {
	likes    map[string]struct{}
	dislikes map[string]struct{}
}

// MessageStore holds the ordered message sequence in memory and writes
// snapshots to a SnapshotStore after every mutation. Saves are queued on a
// dedicated goroutine so a slow disk never stalls a caller.
type MessageStore struct {
	mu        sync.Mutex
	messages  []Message
	reactions map[string]*reactionSet

	store SnapshotStore
	log   *slog.Logger

	saveCh    chan []Message
	saverDone chan struct{}
	closeOnce sync.Once
}

// NewMessageStore loads any existing history from store and starts the saver
// goroutine. A nil store disables persistence, which is useful in tests. A
// load failure is logged and the store starts with an empty history.
func NewMessageStore(store SnapshotStore, log *slog.Logger) *MessageStore {
	s := &MessageStore{
		reactions: make(map[string]*reactionSet),
		store:     store,
		log:       log,
		saveCh:    make(chan []Message, 1),
		saverDone: make(chan struct{}),
	}

	if store != nil {
		messages, err := store.Load()
		if err != nil {
			log.Warn("could not load message history, starting fresh", "error", err)
		} else {
			s.messages = messages
		}
	}

	go s.runSaver()
	return s
}

// Close stops the saver goroutine after the pending snapshot, if any, has
// been written. The store must not be mutated after Close.
func (s *MessageStore) Close() {
	s.closeOnce.Do(func() {
		close(s.saveCh)
		<-s.saverDone
	})
}

// CreateMessage appends a new message with a fresh id and the current
// wall-clock timestamp, schedules a snapshot save, and returns a copy.
func (s *MessageStore) CreateMessage(author, content string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	message := Message{
		ID:        uuid.NewString(),
		Author:    author,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
	s.messages = append(s.messages, message)
	s.scheduleSave()
	return message
}

// AllMessages returns the full history in creation order, oldest first.
func (s *MessageStore) AllMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// MessagesAfter returns the messages created strictly after the given epoch
// millisecond timestamp, preserving creation order.
func (s *MessageStore) MessagesAfter(timestamp int64) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Filter(s.messages, func(m Message, _ int) bool {
		return m.Timestamp > timestamp
	})
}

// ToggleLike toggles username's like on the message. A like by the same user
// is removed; otherwise the like is added and any dislike by the same user is
// dropped. Returns the updated message or ErrMessageNotFound.
func (s *MessageStore) ToggleLike(messageID, username string) (Message, error) {
	return s.toggleReaction(messageID, username, false)
}

// ToggleDislike is symmetric to ToggleLike for the dislike set.
func (s *MessageStore) ToggleDislike(messageID, username string) (Message, error) {
	return s.toggleReaction(messageID, username, true)
}

func (s *MessageStore) toggleReaction(messageID, username string, dislike bool) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Message{}, ErrMessageNotFound
	}

	set, ok := s.reactions[messageID]
	if !ok {
		set = &reactionSet{
			likes:    make(map[string]struct{}),
			dislikes: make(map[string]struct{}),
		}
		s.reactions[messageID] = set
	}

	target, opposite := set.likes, set.dislikes
	if dislike {
		target, opposite = set.dislikes, set.likes
	}

	delete(opposite, username)
	if _, reacted := target[username]; reacted {
		delete(target, username)
	} else {
		target[username] = struct{}{}
	}

	s.messages[idx].Likes = len(set.likes)
	s.messages[idx].Dislikes = len(set.dislikes)
	s.scheduleSave()
	return s.messages[idx], nil
}

// snapshot copies the history. Callers must hold s.mu.
func (s *MessageStore) snapshot() []Message {
	messages := make([]Message, len(s.messages))
	copy(messages, s.messages)
	return messages
}

// scheduleSave queues the current history for the saver goroutine. The queue
// holds a single pending snapshot; a newer one replaces it. Callers must hold
// s.mu.
func (s *MessageStore) scheduleSave() {
	if s.store == nil {
		return
	}

	snap := s.snapshot()
	for {
		select {
		case s.saveCh <- snap:
			return
		default:
		}
		select {
		case <-s.saveCh:
		default:
		}
	}
}

func (s *MessageStore) runSaver() {
	defer close(s.saverDone)
	for snap := range s.saveCh {
		if err := s.store.Save(snap); err != nil {
			s.log.Error("failed to save message history", "error", err, "messages", len(snap))
		}
	}
}
