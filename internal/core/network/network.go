package network

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrClosed is returned by a bus that has been shut down.
var ErrClosed = errors.New("pubsub closed")

// Message is one frame seen on a bus topic.
type Message struct {
	Topic   string
	Payload []byte
}

// PubSub is a broadcast bus: every subscriber of a topic sees every payload
// published on it, including payloads published by itself.
//
// Subscribe returns a disposer that releases the subscription and closes the
// channel. Calling it more than once is safe.
type PubSub interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string) (<-chan Message, func(), error)
}

var logger atomic.Pointer[zap.Logger]

// Logger returns the package logger, a no-op logger unless SetLogger was called.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger configures the package logger.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
