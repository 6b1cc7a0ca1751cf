package crawler

import (
	"context"
	"errors"
)

// MockPage implements Page over a fixed document
type MockPage struct {
	url     string
	html    string
	htmlErr error
}

var _ Page = (*MockPage)(nil)

func NewMockPage(url, html string) *MockPage {
	return &MockPage{url: url, html: html}
}

func (m *MockPage) Goto(ctx context.Context, url string) error {
	m.url = url
	return nil
}

func (m *MockPage) HTML() (string, error) {
	if m.htmlErr != nil {
		return "", m.htmlErr
	}
	return m.html, nil
}

func (m *MockPage) URL() string {
	return m.url
}

func (m *MockPage) Close() error {
	return nil
}

var errMockHTML = errors.New("target closed")
