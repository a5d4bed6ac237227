package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/pulsechat/pulsechat/internal/chat"
)

// Server exposes the WebSocket endpoint and the REST API over the shared
// message store and user registry.
type Server struct {
	cfg      Config
	hub      *Hub
	messages *chat.MessageStore
	users    *chat.UserRegistry
	log      *slog.Logger
	upgrader websocket.Upgrader
	validate *validator.Validate
}

// NewServer builds the HTTP layer. The origin allow-list from cfg is applied
// to WebSocket upgrades.
func NewServer(cfg Config, hub *Hub, messages *chat.MessageStore, users *chat.UserRegistry, log *slog.Logger) *Server {
	policy := newOriginPolicy(cfg.AllowedOrigins, log)
	return &Server{
		cfg:      cfg,
		hub:      hub,
		messages: messages,
		users:    users,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
		validate: validator.New(),
	}
}

// apiResponse is the envelope for every REST response.
type apiResponse struct {
	Success   bool     `json:"success"`
	Data      any      `json:"data,omitempty"`
	Error     string   `json:"error,omitempty"`
	Details   []string `json:"details,omitempty"`
	Missing   []string `json:"missing,omitempty"`
	Expected  []string `json:"expected,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("error writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, apiResponse{Success: false, Error: message})
}

// handleWebSocket upgrades the connection and registers it with the hub,
// which starts the pumps and greets the client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	s.hub.Register(NewClient(conn, s.hub, r.RemoteAddr, s.cfg))
}

// handleGetMessages serves GET /messages with an optional since filter in
// epoch milliseconds.
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	var messages []chat.Message
	if since := r.URL.Query().Get("since"); since != "" {
		ts, err := strconv.ParseInt(since, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid since parameter")
			return
		}
		messages = s.messages.MessagesAfter(ts)
	} else {
		messages = s.messages.AllMessages()
	}

	s.writeJSON(w, http.StatusOK, apiResponse{
		Success:   true,
		Data:      map[string]any{"messages": messages},
		Timestamp: time.Now().UnixMilli(),
	})
}

type postMessageRequest struct {
	Author  *string `json:"author" validate:"required"`
	Content *string `json:"content" validate:"required"`
}

// handlePostMessage serves POST /messages: field presence is checked first,
// then the domain validation rules; a valid request creates the message.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	expected := []string{"author", "content"}
	if err := s.validate.Struct(req); err != nil {
		var missing []string
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, fieldErr := range validationErrs {
				switch fieldErr.Field() {
				case "Author":
					missing = append(missing, "author")
				case "Content":
					missing = append(missing, "content")
				}
			}
		}
		s.writeJSON(w, http.StatusBadRequest, apiResponse{
			Success:  false,
			Error:    "Missing required fields",
			Missing:  missing,
			Expected: expected,
		})
		return
	}

	if v := chat.ValidateMessage(*req.Author, *req.Content); !v.Valid {
		s.writeJSON(w, http.StatusBadRequest, apiResponse{
			Success: false,
			Error:   "Validation failed",
			Details: v.Errors,
		})
		return
	}

	message := s.messages.CreateMessage(*req.Author, *req.Content)
	s.log.Info("message created via api", "message", message.ID, "author", message.Author)

	s.writeJSON(w, http.StatusCreated, apiResponse{
		Success: true,
		Data:    map[string]any{"message": message},
	})
}

// handleGetUsers serves GET /users with the online usernames.
func (s *Server) handleGetUsers(w http.ResponseWriter, _ *http.Request) {
	usernames := s.users.Usernames()
	s.writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data:    map[string]any{"users": usernames, "count": len(usernames)},
	})
}

// handleHealth reports that the service is up.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("PulseChat server is running!"))
}
