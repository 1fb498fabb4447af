package iot

import (
	"context"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/auth"
)

// Transport is one signed broker connection.
//
// Start begins connecting without blocking; progress is reported on
// Events. Stop tears the connection down and must eventually emit
// EventStopped. Implementations must be safe for concurrent use.
type Transport interface {
	Start() error
	Stop() error
	Subscribe(ctx context.Context, filter string, qos byte) error
	Unsubscribe(ctx context.Context, filter string) error
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
	Events() <-chan Event
}

// TransportFactory builds a transport signed with creds for identity.
type TransportFactory func(creds auth.Credentials, identity auth.Identity) (Transport, error)
