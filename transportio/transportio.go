// Package transportio implements the agent's transport adapters: UDP
// datagrams, length-prefixed TCP streams, and octet-stuffed serial framing,
// each turning raw bytes into processor.Packet values and processor replies
// back into bytes on the wire.
package transportio

import (
	"context"
	"errors"

	"github.com/samsamfire/xrce-agent/processor"
)

// ErrNotConnected is returned by Send when no open connection or binding
// exists for the destination endpoint.
var ErrNotConnected = errors.New("transportio: no connection for endpoint")

// Adapter is the contract a transport implements: deliver bytes to a peer
// endpoint, and run a receive loop that hands decoded packets to onPacket
// until ctx is canceled.
type Adapter interface {
	processor.Sender
	Run(ctx context.Context, onPacket func(processor.Packet)) error
}

// NewAdapterFunc constructs an Adapter from a transport-specific config
// blob (typically unmarshaled INI/flag values). Mirrors the teacher's
// pluggable CAN-interface registry.
type NewAdapterFunc func(config map[string]string) (Adapter, error)

// AvailableAdapters maps a transport name ("udp", "tcp") to its
// constructor. A transport adapter registers itself here from an init
// function; cmd/agent looks those transports up by name from config. The
// serial adapter is not registered: cmd/agent builds it directly with
// NewSerialAdapter.
var AvailableAdapters = make(map[string]NewAdapterFunc)

// RegisterAdapter adds transportType to AvailableAdapters.
func RegisterAdapter(transportType string, newAdapter NewAdapterFunc) {
	AvailableAdapters[transportType] = newAdapter
}
