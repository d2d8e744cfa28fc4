// Package bus abstracts the pub/sub transport between the agent process and
// web clients. Delivery is at-least-once and unordered; ordering of audio is
// reconstructed downstream from batch sequence numbers.
package bus

import (
	"context"

	"github.com/voicewire/voicewire/pkg/protocol"
)

// Channel is one named pub/sub channel.
type Channel interface {
	// Publish sends one event to every subscriber of the channel.
	Publish(ctx context.Context, ev protocol.Event) error
	// Subscribe registers the event handler and returns once the
	// subscription is confirmed by the transport. Invalid inbound frames
	// and transport failures are reported through onError.
	Subscribe(onEvent func(protocol.Event), onError func(error)) error
	Close() error
}

// Client connects to named channels.
type Client interface {
	Connect(ctx context.Context, path string) (Channel, error)
}
