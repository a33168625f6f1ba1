package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// upgrader builds a websocket upgrader with origin checking from config.
func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// No origin header means a non-browser client; allow it.
			if origin == "" {
				return true
			}
			return s.originAllowed(origin)
		},
	}
}

// originAllowed matches the origin against the configured allow list.
// Prefix matching allows any port on an allowed host.
func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}
