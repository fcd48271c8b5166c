package stream

import "time"

// Inbound message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypeRequestData = "request_data"
)

// Outbound message types.
const (
	TypeSubscriptionConfirmed   = "subscription_confirmed"
	TypeUnsubscriptionConfirmed = "unsubscription_confirmed"
	TypePong                    = "pong"
	TypeDataResponse            = "data_response"
	TypeError                   = "error"
	TypePeriodicUpdate          = "periodic_update"
	TypeConnectionEstablished   = "connection_established"
)

// Message is the single wire shape for both directions of the live
// connection protocol. Unused fields are omitted per message type.
type Message struct {
	Type         string      `json:"type"`
	Channels     []string    `json:"channels,omitempty"`
	DataType     string      `json:"dataType,omitempty"`
	Data         interface{} `json:"data,omitempty"`
	Message      string      `json:"message,omitempty"`
	ConnectionID string      `json:"connectionId,omitempty"`
	Identity     string      `json:"identity,omitempty"`
	Timestamp    string      `json:"timestamp,omitempty"`
}

func stamp(msg Message) Message {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return msg
}

func errorMessage(text string) Message {
	return stamp(Message{Type: TypeError, Message: text})
}
