// Package chat defines the transport abstraction for the external chat
// network that capability bots live on. The transport owns the connection
// lifecycle and the inbound message stream; it carries no correlation
// logic.
package chat

import (
	"context"
	"time"
)

// Message is one inbound chat message from the network.
type Message struct {
	Sender     string    `json:"sender"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Transport is a long-lived connection to the chat network. Connect is
// called once at startup and Disconnect at shutdown; reconnection is the
// caller's responsibility.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	// Send delivers text to the named recipient. Delivery is at-most-once;
	// the network gives no acknowledgement beyond transport-level errors.
	Send(ctx context.Context, recipient, text string) error
	// Messages returns the inbound event stream. The channel is closed
	// when the transport disconnects.
	Messages() <-chan Message
	Connected() bool
}
