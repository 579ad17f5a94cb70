// Package stream implements the per-stream reassembly, ordering, and
// batching state machines that sit underneath a session: none, best-effort,
// and reliable input streams, and their output-stream counterparts.
package stream

import "github.com/samsamfire/xrce-agent/wire"

// Info carries the per-session addressing fields an output stream needs to
// build a message header and enforce the negotiated MTU.
type Info struct {
	SessionID wire.SessionID
	ClientKey uint32
	MTU       uint16
}

// messageHeaderSize returns the encoded size of a message header under
// info's session id.
func (info Info) messageHeaderSize() int {
	if info.SessionID.HasClientKey() {
		return 8
	}
	return 4
}

const submessageHeaderSize = 4
