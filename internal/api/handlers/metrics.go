package handlers

import (
	"fmt"
	"net/http"

	"beacon/internal/engine/stream"
)

type MetricsHandler struct {
	hub *stream.Hub
}

func NewMetricsHandler(hub *stream.Hub) *MetricsHandler {
	return &MetricsHandler{hub: hub}
}

// Export emits plaintext gauges in the Prometheus exposition format without
// pulling in the client library.
func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "# HELP beacon_up Is the server up\n")
	fmt.Fprintf(w, "# TYPE beacon_up gauge\n")
	fmt.Fprintf(w, "beacon_up 1\n")
	fmt.Fprintf(w, "# HELP beacon_stream_connections Live stream connections\n")
	fmt.Fprintf(w, "# TYPE beacon_stream_connections gauge\n")
	fmt.Fprintf(w, "beacon_stream_connections %d\n", h.hub.ConnectionCount())
	fmt.Fprintf(w, "# HELP beacon_stream_topics Topics with at least one subscriber\n")
	fmt.Fprintf(w, "# TYPE beacon_stream_topics gauge\n")
	fmt.Fprintf(w, "beacon_stream_topics %d\n", h.hub.TopicCount())
}
