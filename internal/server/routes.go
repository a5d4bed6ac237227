package server

import "net/http"

// Routes wires all HTTP endpoints into a ServeMux: the health banner, the
// WebSocket endpoint, and the REST API.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /messages", s.handleGetMessages)
	mux.HandleFunc("POST /messages", s.handlePostMessage)
	mux.HandleFunc("GET /users", s.handleGetUsers)
	return mux
}
