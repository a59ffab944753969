package core

import "errors"

// Frame is one encoded signaling message.
type Frame []byte

// EndpointID identifies one live connection.
type EndpointID string

var (
	ErrBackpressure   = errors.New("backpressure")
	ErrEndpointClosed = errors.New("endpoint closed")
)

// Endpoint abstracts a live signaling connection.
// Owned by the adapter; the adapter must Close() it.
type Endpoint interface {
	ID() EndpointID
	// TrySend enqueues a frame without blocking. It returns ErrBackpressure
	// when the send queue is full and ErrEndpointClosed after Close.
	TrySend(Frame) error
	Close()
}
