package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeExtraction represents failures while reading products off a page
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeBrowser represents browser launch, page or navigation errors
	ErrorTypeBrowser ErrorType = "browser"
	// ErrorTypeImage represents image download errors
	ErrorTypeImage ErrorType = "image"
	// ErrorTypeDelivery represents messaging transport errors
	ErrorTypeDelivery ErrorType = "delivery"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeNetwork represents network-related errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit represents a target that asked us to back off
	ErrorTypeRateLimit ErrorType = "rate_limit"
)

// WorkerError represents an error raised by one of the worker components
type WorkerError struct {
	Type      ErrorType
	Component string
	Message   string
	Err       error
	Time      time.Time
}

// Error implements the error interface
func (e *WorkerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *WorkerError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *WorkerError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeBrowser, ErrorTypeDelivery:
		return true
	case ErrorTypeRateLimit, ErrorTypeValidation, ErrorTypeConfiguration:
		return false
	default:
		return false
	}
}

// Is reports whether err is a WorkerError of the given type
func Is(err error, errType ErrorType) bool {
	var we *WorkerError
	if errors.As(err, &we) {
		return we.Type == errType
	}
	return false
}

// New creates a new WorkerError
func New(errType ErrorType, component, message string, err error) *WorkerError {
	return &WorkerError{
		Type:      errType,
		Component: component,
		Message:   message,
		Err:       err,
		Time:      time.Now(),
	}
}

// NewExtraction creates a new extraction error
func NewExtraction(component, message string, err error) *WorkerError {
	return New(ErrorTypeExtraction, component, message, err)
}

// NewBrowser creates a new browser error
func NewBrowser(component, message string, err error) *WorkerError {
	return New(ErrorTypeBrowser, component, message, err)
}

// NewImage creates a new image error
func NewImage(component, message string, err error) *WorkerError {
	return New(ErrorTypeImage, component, message, err)
}

// NewDelivery creates a new delivery error
func NewDelivery(component, message string, err error) *WorkerError {
	return New(ErrorTypeDelivery, component, message, err)
}

// NewNetwork creates a new network error
func NewNetwork(component, message string, err error) *WorkerError {
	return New(ErrorTypeNetwork, component, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(component string, duration time.Duration) *WorkerError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, component, message, nil)
}

// NewValidation creates a new validation error
func NewValidation(component, message string) *WorkerError {
	return New(ErrorTypeValidation, component, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *WorkerError {
	return New(ErrorTypeConfiguration, "config", message, err)
}
