package stream

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// runScheduler is the per-connection periodic update task, 1:1 with the
// connection id. It stops only when the connection closes or a push finds
// the connection gone. A full send buffer drops that tick and keeps the
// schedule running; backpressure must not end updates for a live
// connection.
func (h *Hub) runScheduler(conn *Conn) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.Done():
			return
		case <-ticker.C:
			msg := stamp(Message{Type: TypePeriodicUpdate, Data: h.snapshot()})
			if err := h.Send(conn.ID, msg); err != nil {
				if errors.Is(err, errConnClosed) {
					return
				}
				log.Debug().Err(err).Str("connection_id", conn.ID).Msg("periodic update dropped")
			}
		}
	}
}
