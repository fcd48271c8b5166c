// Package stream holds the live-connection core: the connection registry,
// the topic subscription index, the per-connection periodic scheduler, and
// the broadcast dispatcher. The registry is an injected service with an
// explicit lifetime, not ambient global state.
package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SnapshotFunc produces the metrics snapshot pushed on every scheduler tick.
// It must be a cheap aggregate read.
type SnapshotFunc func() interface{}

// DataFunc serves request_data messages by data type name.
type DataFunc func(dataType string) (interface{}, error)

type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	topics map[string]map[string]struct{} // topic -> set of connection ids

	snapshot SnapshotFunc
	dataFn   DataFunc
	interval time.Duration
	buffer   int
}

type HubOptions struct {
	UpdateInterval time.Duration
	SendBuffer     int
	Snapshot       SnapshotFunc
	Data           DataFunc
}

func NewHub(opts HubOptions) *Hub {
	interval := opts.UpdateInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	buffer := opts.SendBuffer
	if buffer <= 0 {
		buffer = 64
	}
	snapshot := opts.Snapshot
	if snapshot == nil {
		snapshot = func() interface{} { return map[string]interface{}{} }
	}
	dataFn := opts.Data
	if dataFn == nil {
		dataFn = func(string) (interface{}, error) { return nil, errUnknownDataType }
	}
	return &Hub{
		conns:    make(map[string]*Conn),
		topics:   make(map[string]map[string]struct{}),
		snapshot: snapshot,
		dataFn:   dataFn,
		interval: interval,
		buffer:   buffer,
	}
}

// Register creates a connection entry, starts its write loop and its
// scheduler task, and pushes connection_established.
func (h *Hub) Register(identity string, writer MessageWriter) *Conn {
	conn := newConn("conn_"+uuid.New().String(), identity, writer, h.buffer)

	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()

	go conn.writeLoop(func() { h.Unregister(conn.ID) })
	go h.runScheduler(conn)

	h.Send(conn.ID, stamp(Message{
		Type:         TypeConnectionEstablished,
		ConnectionID: conn.ID,
		Identity:     identity,
	}))

	log.Debug().Str("connection_id", conn.ID).Str("identity", identity).Msg("stream connection registered")
	return conn
}

// Unregister removes the connection, drops it from every topic's subscriber
// set, and cancels its scheduler. Idempotent.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	conn, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	for topic, subs := range h.topics {
		delete(subs, id)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	h.mu.Unlock()

	if ok {
		conn.cancel()
		log.Debug().Str("connection_id", id).Msg("stream connection unregistered")
	}
}

// Subscribe adds the connection to each topic's subscriber set. Subscribing
// twice to the same topic is a no-op. Returns the topics applied.
func (h *Hub) Subscribe(id string, topics []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[id]; !ok {
		return nil
	}

	applied := make([]string, 0, len(topics))
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		subs, ok := h.topics[topic]
		if !ok {
			subs = make(map[string]struct{})
			h.topics[topic] = subs
		}
		subs[id] = struct{}{}
		applied = append(applied, topic)
	}
	return applied
}

// Unsubscribe removes the connection from each topic's set. Topics left
// empty are removed from the index entirely.
func (h *Hub) Unsubscribe(id string, topics []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	applied := make([]string, 0, len(topics))
	for _, topic := range topics {
		subs, ok := h.topics[topic]
		if ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
		applied = append(applied, topic)
	}
	return applied
}

// Send queues a message for one connection. A send against a closed or
// unknown connection logs and returns an error; it never panics, so a send
// racing a concurrent close is safe.
func (h *Hub) Send(id string, msg Message) error {
	h.mu.RLock()
	conn, ok := h.conns[id]
	h.mu.RUnlock()

	if !ok {
		log.Debug().Str("connection_id", id).Msg("send to unknown connection dropped")
		return errConnClosed
	}
	if err := conn.enqueue(msg); err != nil {
		log.Debug().Err(err).Str("connection_id", id).Msg("send dropped")
		return err
	}
	return nil
}

// Connections returns every live connection id.
func (h *Hub) Connections() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	return ids
}

// Subscribers returns the union of the subscriber sets for the given topics.
func (h *Hub) Subscribers(topics []string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, topic := range topics {
		for id := range h.topics[topic] {
			seen[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids
}

// TopicCount reports the number of topics with at least one subscriber.
func (h *Hub) TopicCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// HandleInbound dispatches one raw client message. Malformed input is a
// recoverable per-message error answered with an error message, never a
// reason to drop the connection.
func (h *Hub) HandleInbound(connID string, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.Send(connID, errorMessage("invalid message: not valid JSON"))
		return
	}

	switch msg.Type {
	case TypeSubscribe:
		applied := h.Subscribe(connID, msg.Channels)
		h.Send(connID, stamp(Message{Type: TypeSubscriptionConfirmed, Channels: applied}))

	case TypeUnsubscribe:
		applied := h.Unsubscribe(connID, msg.Channels)
		h.Send(connID, stamp(Message{Type: TypeUnsubscriptionConfirmed, Channels: applied}))

	case TypePing:
		h.Send(connID, stamp(Message{Type: TypePong}))

	case TypeRequestData:
		data, err := h.dataFn(msg.DataType)
		if err != nil {
			h.Send(connID, errorMessage(err.Error()))
			return
		}
		h.Send(connID, stamp(Message{Type: TypeDataResponse, DataType: msg.DataType, Data: data}))

	default:
		h.Send(connID, errorMessage("unknown message type: "+msg.Type))
	}
}
