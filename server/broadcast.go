package server

import "github.com/waitline/waitline/bus"

// runFanout is the per-process bus consumer: it drains the event stream
// and rebroadcasts every event, unmodified, to all connected viewers.
// No server-side filtering happens here; viewers filter by the queue_id
// inside the payload.
func (s *Server) runFanout() {
	subID, events := s.bus.Subscribe()
	defer s.bus.Unsubscribe(subID)

	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			s.broadcastEnvelope(event.Envelope())
		}
	}
}

// broadcastEnvelope sends one envelope to every viewer. Sends are
// non-blocking: a viewer whose buffer is full just misses the event,
// it never stalls the consumer loop or other viewers. The read lock is
// held across the sends so a concurrent unregister cannot close a
// channel mid-send.
func (s *Server) broadcastEnvelope(envelope bus.Envelope) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sent := 0
	for client := range s.clients {
		select {
		case client.send <- envelope:
			sent++
		default:
			if s.logger != nil {
				s.logger.Debugw("Viewer buffer full, dropping event",
					"client_id", client.id,
					"event_type", envelope.EventType,
				)
			}
		}
	}
	return sent
}
