package server

import "net/http"

// setupRoutes configures all HTTP handlers
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /api/queues", s.corsMiddleware(s.handleCreateQueue))
	s.mux.HandleFunc("GET /api/queues", s.corsMiddleware(s.handleListQueues))
	s.mux.HandleFunc("GET /api/queues/{id}", s.corsMiddleware(s.handleGetQueue))
	s.mux.HandleFunc("PUT /api/queues/{id}", s.corsMiddleware(s.handleUpdateQueue))
	s.mux.HandleFunc("DELETE /api/queues/{id}", s.corsMiddleware(s.handleDeleteQueue))
	s.mux.HandleFunc("GET /api/queues/{id}/access", s.corsMiddleware(s.handleQueueAccess))

	s.mux.HandleFunc("POST /api/queues/{id}/join", s.corsMiddleware(s.handleJoin))
	s.mux.HandleFunc("GET /api/queues/{id}/tickets", s.corsMiddleware(s.handleListTickets))
	s.mux.HandleFunc("POST /api/queues/{id}/tickets/{ticketID}/status", s.corsMiddleware(s.handleTicketStatus))
	s.mux.HandleFunc("DELETE /api/queues/{id}/tickets/{ticketID}", s.corsMiddleware(s.handleRemoveTicket))

	s.mux.HandleFunc("GET /api/queues/{id}/history", s.corsMiddleware(s.handleQueueHistory))
	s.mux.HandleFunc("GET /api/queues/{id}/history/stats", s.corsMiddleware(s.handleQueueHistoryStats))

	s.mux.HandleFunc("GET /health", s.corsMiddleware(s.handleHealth))
	s.mux.HandleFunc("/ws/queues", s.corsMiddleware(s.handleWebSocket))

	// Preflight for every API path.
	s.mux.HandleFunc("OPTIONS /api/", s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {}))
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}
