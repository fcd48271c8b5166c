package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"beacon/internal/engine/stream"
)

type StreamHandler struct {
	hub *stream.Hub
}

func NewStreamHandler(hub *stream.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

type wsWriter struct {
	conn *websocket.Conn
}

func (w wsWriter) WriteMessage(ctx context.Context, msg stream.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return w.conn.Write(ctx, websocket.MessageText, data)
}

// Handle upgrades to a websocket, registers the connection, and runs the
// read loop until the client disconnects. Malformed messages are answered
// with an error message and the loop continues.
func (h *StreamHandler) Handle(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer c.CloseNow()

	conn := h.hub.Register(claims.IdentityID, wsWriter{conn: c})
	defer h.hub.Unregister(conn.ID)

	ctx := r.Context()
	for {
		select {
		case <-conn.Done():
			c.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		h.hub.HandleInbound(conn.ID, data)
	}
}
