package notifier

import (
	"context"
	"errors"
	"sync"

	"sjsage522/dealalert/services/messaging"
)

type sentMessage struct {
	Kind    string
	To      string
	Text    string
	Mime    string
	Image   []byte
	Caption string
}

// MockClient records outbound messages and fails on demand
type MockClient struct {
	mu        sync.Mutex
	sent      []sentMessage
	failImage map[string]bool
	failText  map[string]bool
	events    chan messaging.Event
}

var _ messaging.Client = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{
		failImage: make(map[string]bool),
		failText:  make(map[string]bool),
		events:    make(chan messaging.Event, 1),
	}
}

func (m *MockClient) Start(ctx context.Context) error {
	m.events <- messaging.Event{Type: messaging.EventReady}
	return nil
}

func (m *MockClient) SendText(ctx context.Context, destination, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failText[destination] {
		return errors.New("text rejected")
	}
	m.sent = append(m.sent, sentMessage{Kind: "text", To: destination, Text: text})
	return nil
}

func (m *MockClient) SendImage(ctx context.Context, destination string, image []byte, mimeType, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failImage[destination] {
		return errors.New("media rejected")
	}
	m.sent = append(m.sent, sentMessage{Kind: "image", To: destination, Mime: mimeType, Image: image, Caption: caption})
	return nil
}

func (m *MockClient) Events() <-chan messaging.Event {
	return m.events
}

func (m *MockClient) Close() error {
	return nil
}

func (m *MockClient) Sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

// MockImages returns a fixed image or nothing
type MockImages struct {
	mu      sync.Mutex
	data    []byte
	mime    string
	ok      bool
	calls   int
	referer string
}

func (m *MockImages) Fetch(ctx context.Context, imageURL, referer string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.referer = referer
	return m.data, m.mime, m.ok
}
