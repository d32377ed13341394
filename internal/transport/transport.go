// Package transport hands built messages to the messaging network and owns
// the relay's registration on it.
package transport

import (
	"context"
	"errors"

	"github.com/eldtechnologies/sendmessage/internal/models"
)

var ErrNotRegistered = errors.New("component is not registered with the network")

// Transport accepts a fully formed message for asynchronous delivery.
type Transport interface {
	Dispatch(ctx context.Context, msg *models.Message) error
}

// Component is a Transport that must register under a service address
// before it can route messages.
type Component interface {
	Transport

	// Name identifies the transport in logs and metrics.
	Name() string
	Address() string
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
	Ping(ctx context.Context) error
}

// registration is the record a component publishes when it registers.
type registration struct {
	Address      string `json:"address"`
	RegisteredAt int64  `json:"registered_at"` // Unix ms
}
