package messaging

import (
	"context"
	"time"
)

// EventType identifies a transport lifecycle or inbound event
type EventType string

const (
	// EventReady is emitted once the transport can deliver messages
	EventReady EventType = "ready"
	// EventMessage carries an inbound message
	EventMessage EventType = "message"
	// EventAuthFailure means the transport rejected our credentials
	EventAuthFailure EventType = "auth_failure"
	// EventDisconnected means the transport connection was lost
	EventDisconnected EventType = "disconnected"
)

// PingCommand is answered with PongReply by every client
const (
	PingCommand = "!ping"
	PongReply   = "pong"
)

// Event is delivered on Client.Events
type Event struct {
	Type EventType
	From string
	Body string
	Err  error
	Time time.Time
}

// Client delivers alerts to destinations
type Client interface {
	// Start connects the transport and begins emitting events
	Start(ctx context.Context) error

	// SendText sends a plain text message
	SendText(ctx context.Context, destination, text string) error

	// SendImage sends an image with a caption
	SendImage(ctx context.Context, destination string, image []byte, mimeType, caption string) error

	// Events returns the lifecycle and inbound message stream
	Events() <-chan Event

	// Close releases the transport
	Close() error
}

// WaitReady blocks until the client reports EventReady. An auth failure or
// a closed event stream is returned as an error.
func WaitReady(ctx context.Context, c Client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-c.Events():
			if !ok {
				return errClosed
			}
			switch ev.Type {
			case EventReady:
				return nil
			case EventAuthFailure:
				return ev.Err
			}
		}
	}
}
