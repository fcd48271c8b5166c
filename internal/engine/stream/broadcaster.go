package stream

import "errors"

var errUnknownDataType = errors.New("unknown data type")

// Result summarizes one broadcast call.
type Result struct {
	Sent   int `json:"sent"`
	Errors int `json:"errors"`
}

type Broadcaster struct {
	hub *Hub
}

func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast pushes a message to every matching live connection: all of them
// when topics is empty, otherwise the union of the topics' subscriber sets.
// Delivery is best-effort, at-most-once per connection per call; a failed
// send is counted and the loop continues.
func (b *Broadcaster) Broadcast(eventType string, data interface{}, topics []string) Result {
	var targets []string
	if len(topics) == 0 {
		targets = b.hub.Connections()
	} else {
		targets = b.hub.Subscribers(topics)
	}

	msg := stamp(Message{Type: eventType, Data: data})

	var result Result
	for _, id := range targets {
		if err := b.hub.Send(id, msg); err != nil {
			result.Errors++
			continue
		}
		result.Sent++
	}
	return result
}
