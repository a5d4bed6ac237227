package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pulsechat/pulsechat/internal/chat"
	"github.com/pulsechat/pulsechat/internal/protocol"
)

// Command failure texts sent on the error event. Validation failures are
// joined by ", " instead.
const (
	errMustJoinFirst     = "Must join with username first"
	errAlreadyJoined     = "Already joined"
	errMessageNotFound   = "Message not found"
	errUsernameTaken     = "Username already taken"
	errInvalidFrame      = "Invalid message format"
	errUnknownCommandPfx = "Unknown command: "
)

// inboundFrame is one raw frame read from a connection, handled on the hub's
// event loop.
type inboundFrame struct {
	client *Client
	data   []byte
}

// Hub is the session coordinator. A single event loop owns the connection
// table and serializes all command handling: decoding frames, enforcing the
// join state machine, mutating the message store and user registry, and
// fanning events out to connections.
type Hub struct {
	messages *chat.MessageStore
	users    *chat.UserRegistry
	log      *slog.Logger

	connections map[string]*Client
	register    chan *Client
	unregister  chan *Client
	inbound     chan inboundFrame

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub wires the coordinator to its message store and user registry. Run
// must be started on its own goroutine before clients are registered.
func NewHub(messages *chat.MessageStore, users *chat.UserRegistry, log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		messages:    messages,
		users:       users,
		log:         log,
		connections: make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		inbound:     make(chan inboundFrame),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Register hands a freshly accepted connection to the event loop.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Run executes the hub event loop until Shutdown. All connection and session
// state transitions happen here.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.dropClient(client)

		case frame := <-h.inbound:
			h.handleFrame(frame.client, frame.data)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	if client == nil {
		h.log.Warn("received nil client registration, skipping")
		return
	}

	h.mutex.Lock()
	client.closed = false
	h.connections[client.id] = client
	total := len(h.connections)
	h.mutex.Unlock()
	h.log.Info("connection added", "connection", client.id, "addr", client.addr, "total", total)

	if client.conn != nil {
		h.wg.Add(2)
		go func() {
			defer h.wg.Done()
			client.writePump()
		}()
		go func() {
			defer h.wg.Done()
			client.readPump()
		}()
	}

	h.sendEvent(client, protocol.EventConnectionEstablished, protocol.ConnectionEstablished{
		ConnectionID: client.id,
	})
}

// dropClient removes the connection, releases its session, and tells the
// remaining connections when a joined user left.
func (h *Hub) dropClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.connections[client.id]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.connections, client.id)
	client.closed = true
	total := len(h.connections)
	h.mutex.Unlock()
	close(client.send)
	h.log.Info("connection removed", "connection", client.id, "total", total)

	user, hadSession := h.users.RemoveUser(client.id)
	if !hadSession {
		return
	}

	h.log.Info("user left", "username", user.Username)
	h.broadcast(nil, protocol.EventUserLeft, protocol.UserLeft{
		Username:    user.Username,
		Timestamp:   time.Now().UnixMilli(),
		OnlineUsers: h.users.Usernames(),
	})
}

// handleFrame decodes one inbound frame and dispatches the command. Every
// failure path answers the sender with an error event and leaves all other
// state untouched.
func (h *Hub) handleFrame(client *Client, raw []byte) {
	cmd, err := protocol.ParseCommand(raw)
	if err != nil {
		h.log.Warn("undecodable frame", "connection", client.id, "error", err)
		h.sendError(client, errInvalidFrame)
		return
	}

	switch cmd := cmd.(type) {
	case protocol.Join:
		h.handleJoin(client, cmd)
	case protocol.SendMessage:
		h.handleSendMessage(client, cmd)
	case protocol.LikeMessage:
		h.handleReaction(client, cmd.MessageID, h.messages.ToggleLike)
	case protocol.DislikeMessage:
		h.handleReaction(client, cmd.MessageID, h.messages.ToggleDislike)
	case protocol.GetMessages:
		h.handleGetMessages(client, cmd)
	case protocol.Unknown:
		h.sendError(client, errUnknownCommandPfx+cmd.Name)
	}
}

func (h *Hub) handleJoin(client *Client, cmd protocol.Join) {
	if _, joined := h.users.GetUser(client.id); joined {
		h.sendError(client, errAlreadyJoined)
		return
	}

	if v := chat.ValidateUsername(cmd.Username); !v.Valid {
		h.sendError(client, strings.Join(v.Errors, ", "))
		return
	}

	user, err := h.users.AddUser(client.id, cmd.Username)
	if err != nil {
		if errors.Is(err, chat.ErrUsernameTaken) {
			h.sendError(client, errUsernameTaken)
			return
		}
		h.log.Error("failed to register user", "connection", client.id, "error", err)
		h.sendError(client, errInvalidFrame)
		return
	}

	h.log.Info("user joined", "username", user.Username, "connection", client.id)

	h.sendEvent(client, protocol.EventJoinSuccess, protocol.JoinSuccess{
		User:        user,
		Messages:    h.messages.AllMessages(),
		OnlineUsers: h.users.Usernames(),
	})

	h.broadcast(client, protocol.EventUserJoined, protocol.UserJoined{
		Username:    user.Username,
		Timestamp:   time.Now().UnixMilli(),
		OnlineUsers: h.users.Usernames(),
	})
}

func (h *Hub) handleSendMessage(client *Client, cmd protocol.SendMessage) {
	user, joined := h.users.GetUser(client.id)
	if !joined {
		h.sendError(client, errMustJoinFirst)
		return
	}

	if v := chat.ValidateMessage(user.Username, cmd.Content); !v.Valid {
		h.sendError(client, strings.Join(v.Errors, ", "))
		return
	}

	message := h.messages.CreateMessage(user.Username, cmd.Content)
	h.log.Info("message posted", "username", user.Username, "message", message.ID)

	h.broadcast(nil, protocol.EventNewMessage, protocol.NewMessage{Message: message})
}

func (h *Hub) handleReaction(client *Client, messageID string, toggle func(string, string) (chat.Message, error)) {
	user, joined := h.users.GetUser(client.id)
	if !joined {
		h.sendError(client, errMustJoinFirst)
		return
	}

	message, err := toggle(messageID, user.Username)
	if err != nil {
		// Toggles only fail on an unknown message id.
		h.sendError(client, errMessageNotFound)
		return
	}

	h.broadcast(nil, protocol.EventMessageUpdated, protocol.MessageUpdated{Message: message})
}

func (h *Hub) handleGetMessages(client *Client, cmd protocol.GetMessages) {
	var messages []chat.Message
	if cmd.Since != nil {
		messages = h.messages.MessagesAfter(*cmd.Since)
	} else {
		messages = h.messages.AllMessages()
	}

	h.sendEvent(client, protocol.EventMessages, protocol.MessageList{Messages: messages})
}

// sendEvent delivers one event to a single connection. A failed send tears
// the connection down without affecting anyone else.
func (h *Hub) sendEvent(client *Client, event string, data any) {
	payload, err := protocol.Encode(event, data)
	if err != nil {
		h.log.Error("failed to encode event", "event", event, "error", err)
		return
	}
	if !h.safeSend(client, payload) {
		h.log.Warn("dropping unreachable connection", "connection", client.id, "event", event)
		h.dropClient(client)
	}
}

func (h *Hub) sendError(client *Client, message string) {
	h.sendEvent(client, protocol.EventError, protocol.ErrorEvent{
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}

// broadcast fans an event out to every connection except exclude. The
// recipient set is snapshotted first so sends tolerate concurrent
// registration, and each send is independently fallible.
func (h *Hub) broadcast(exclude *Client, event string, data any) {
	payload, err := protocol.Encode(event, data)
	if err != nil {
		h.log.Error("failed to encode broadcast", "event", event, "error", err)
		return
	}

	var failed []*Client
	for _, client := range h.clientSnapshot() {
		if client == exclude {
			continue
		}
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}

	for _, client := range failed {
		h.log.Warn("removing connection with full send buffer", "connection", client.id)
		h.dropClient(client)
	}
}

// safeSend queues a payload without blocking. It reports false when the
// connection is gone or its send buffer is full.
func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("recovered from panic in safeSend", "panic", r)
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.connections[client.id]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

func (h *Hub) clientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.connections))
	for _, client := range h.connections {
		clients = append(clients, client)
	}
	return clients
}

func (h *Hub) closeAllClients() {
	h.log.Info("closing all client connections")

	clients := h.clientSnapshot()
	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Error("error closing client connection", "addr", client.addr, "error", err)
		}
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the event loop, closes every connection, and waits for the
// pump goroutines up to the timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached")
		return context.DeadlineExceeded
	}
}
