package messaging

import (
	"context"
	"sync"
	"time"

	"sjsage522/dealalert/logger"
)

// LogClient writes alerts to the log instead of a chat transport. It is
// meant for local runs.
type LogClient struct {
	events    chan Event
	log       *logger.Logger
	mu        sync.Mutex
	sent      int
	closeOnce sync.Once
}

// NewLogClient creates a log-only transport
func NewLogClient() *LogClient {
	return &LogClient{
		events: make(chan Event, 4),
		log:    logger.ForMessaging(),
	}
}

// Start reports ready immediately
func (c *LogClient) Start(ctx context.Context) error {
	c.events <- Event{Type: EventReady, Time: time.Now()}
	return nil
}

// SendText logs the message
func (c *LogClient) SendText(ctx context.Context, destination, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.count()
	c.log.Info().Str("to", destination).Str("text", text).Msg("Text alert")
	return nil
}

// SendImage logs the caption and image size
func (c *LogClient) SendImage(ctx context.Context, destination string, image []byte, mimeType, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.count()
	c.log.Info().
		Str("to", destination).
		Str("mime", mimeType).
		Int("bytes", len(image)).
		Str("caption", caption).
		Msg("Image alert")
	return nil
}

// Sent returns how many alerts were logged
func (c *LogClient) Sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

func (c *LogClient) count() {
	c.mu.Lock()
	c.sent++
	c.mu.Unlock()
}

// Events returns the event stream
func (c *LogClient) Events() <-chan Event {
	return c.events
}

// Close closes the event stream
func (c *LogClient) Close() error {
	c.closeOnce.Do(func() { close(c.events) })
	return nil
}

var _ Client = (*LogClient)(nil)
