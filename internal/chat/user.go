package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// User is the session binding a connection to a joined username. Username
// keeps the display case; uniqueness is enforced on the lowercased form.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	ConnectionID string `json:"connectionId"`
	JoinedAt     int64  `json:"joinedAt"`
}

// UserRegistry maps connection ids to sessions and reserves usernames
// case-insensitively. At most one session exists per connection and per
// normalized username.
type UserRegistry struct {
	mu       sync.Mutex
	sessions map[string]User
	reserved map[string]string
}

// NewUserRegistry returns an empty registry.
func NewUserRegistry() *UserRegistry {
	return &UserRegistry{
		sessions: make(map[string]User),
		reserved: make(map[string]string),
	}
}

// AddUser registers username for the connection. It fails with
// ErrUsernameTaken when the normalized username is already reserved by a
// different connection.
func (r *UserRegistry) AddUser(connectionID, username string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	normalized := strings.ToLower(username)
	if owner, taken := r.reserved[normalized]; taken && owner != connectionID {
		return User{}, ErrUsernameTaken
	}

	user := User{
		ID:           uuid.NewString(),
		Username:     username,
		ConnectionID: connectionID,
		JoinedAt:     time.Now().UnixMilli(),
	}
	r.sessions[connectionID] = user
	r.reserved[normalized] = connectionID
	return user, nil
}

// RemoveUser releases the connection's session and username reservation. The
// second return is false when the connection had no session.
func (r *UserRegistry) RemoveUser(connectionID string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.sessions[connectionID]
	if !ok {
		return User{}, false
	}
	delete(r.sessions, connectionID)
	delete(r.reserved, strings.ToLower(user.Username))
	return user, true
}

// GetUser returns the session for the connection, if any.
func (r *UserRegistry) GetUser(connectionID string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.sessions[connectionID]
	return user, ok
}

// Usernames returns the display-case names of all joined users. Order follows
// registry iteration and is not stable across removals.
func (r *UserRegistry) Usernames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.MapToSlice(r.sessions, func(_ string, user User) string {
		return user.Username
	})
}
