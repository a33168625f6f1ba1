package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/waitline/waitline/queue"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleCreateQueue(w http.ResponseWriter, r *http.Request) {
	var params queue.CreateParams
	if err := readJSON(w, r, &params); err != nil {
		return
	}

	q, err := s.manager.Create(params)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := s.manager.List()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if queues == nil {
		queues = []*queue.Queue{}
	}
	writeJSON(w, http.StatusOK, queues)
}

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid queue id")
		return
	}

	q, err := s.manager.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleUpdateQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid queue id")
		return
	}

	var params queue.UpdateParams
	if err := readJSON(w, r, &params); err != nil {
		return
	}

	q, err := s.manager.Update(id, params)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleDeleteQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid queue id")
		return
	}

	if err := s.manager.Delete(id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQueueAccess(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid queue id")
		return
	}

	info, err := s.manager.AccessInfo(id, s.cfg.Server.FrontendBaseURL)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type joinRequest struct {
	UserID      *int64  `json:"user_id"`
	AccessToken *string `json:"access_token"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid queue id")
		return
	}

	var req joinRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	joined, err := s.gate.Join(id, req.UserID, req.AccessToken)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, joined)
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid queue id")
		return
	}

	// The queue must exist even when it has no tickets.
	if _, err := s.manager.Get(id); err != nil {
		writeDomainError(w, err)
		return
	}

	var status *queue.TicketStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := queue.TicketStatus(raw)
		status = &st
	}

	tickets, err := s.lifecycle.List(id, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if tickets == nil {
		tickets = []*queue.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

type statusRequest struct {
	Status queue.TicketStatus `json:"status"`
}

func (s *Server) handleTicketStatus(w http.ResponseWriter, r *http.Request) {
	queueID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid queue id")
		return
	}
	ticketID, ok := pathID(r, "ticketID")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid ticket id")
		return
	}

	var req statusRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	ticket, err := s.lifecycle.Transition(queueID, ticketID, req.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (s *Server) handleRemoveTicket(w http.ResponseWriter, r *http.Request) {
	queueID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid queue id")
		return
	}
	ticketID, ok := pathID(r, "ticketID")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid ticket id")
		return
	}

	if err := s.lifecycle.Remove(queueID, ticketID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQueueHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid queue id")
		return
	}

	if _, err := s.manager.Get(id); err != nil {
		writeDomainError(w, err)
		return
	}

	records, err := s.history.List(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if records == nil {
		records = []*queue.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleQueueHistoryStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid queue id")
		return
	}

	if _, err := s.manager.Get(id); err != nil {
		writeDomainError(w, err)
		return
	}

	var lookback time.Duration
	if raw := r.URL.Query().Get("lookback_hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid lookback_hours")
			return
		}
		lookback = time.Duration(hours) * time.Hour
	}

	stats, err := s.history.Stats(id, lookback)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warnw("Websocket upgrade failed", "error", err.Error())
		}
		return
	}

	client := newClient(s, conn)
	s.register <- client

	go client.writePump()
	go client.readPump()
}
