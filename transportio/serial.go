package transportio

import (
	"context"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/xrce-agent/metrics"
	"github.com/samsamfire/xrce-agent/processor"
	"github.com/samsamfire/xrce-agent/transport/framing"
)

// SerialAdapter is the octet-stuffed byte-stream transport: it frames
// every outgoing message with transport/framing.Encode and decodes
// incoming bytes one octet at a time with a framing.Decoder. It wraps
// whatever already-open stream the caller hands it (a serial port, a
// pseudo-terminal, a pipe) rather than opening one itself, since doing so
// is platform-specific and outside what any example in this codebase's
// dependency set covers.
type SerialAdapter struct {
	conn        io.ReadWriteCloser
	localAddr   byte
	peerAddr    byte
	maxFrameLen int
	endpoint    processor.Endpoint
	metrics     *metrics.Metrics
}

// NewSerialAdapter wraps conn, an already-open duplex stream, framing
// outgoing writes from localAddr to peerAddr and accepting incoming frames
// addressed to localAddr. maxFrameLen bounds the largest payload the
// decoder will reassemble. name identifies this link as a Packet source,
// since a serial link has no network address of its own.
func NewSerialAdapter(conn io.ReadWriteCloser, localAddr, peerAddr byte, maxFrameLen int, name string) *SerialAdapter {
	return &SerialAdapter{
		conn:        conn,
		localAddr:   localAddr,
		peerAddr:    peerAddr,
		maxFrameLen: maxFrameLen,
		endpoint:    processor.Endpoint{Network: "serial", Address: name},
	}
}

// SetMetrics attaches m so Run starts counting CRC-dropped frames.
func (a *SerialAdapter) SetMetrics(m *metrics.Metrics) {
	a.metrics = m
}

// Send frames data and writes it to the underlying stream. dest is
// ignored: a serial link has exactly one peer.
func (a *SerialAdapter) Send(dest processor.Endpoint, data []byte) error {
	_, err := a.conn.Write(framing.Encode(a.localAddr, a.peerAddr, data))
	return err
}

// Run decodes incoming bytes until ctx is canceled or the stream closes,
// handing each reassembled frame's payload to onPacket.
func (a *SerialAdapter) Run(ctx context.Context, onPacket func(processor.Packet)) error {
	go func() {
		<-ctx.Done()
		a.conn.Close()
	}()

	decoder := framing.NewDecoder(a.localAddr, a.maxFrameLen)
	buf := make([]byte, 256)
	for {
		n, err := a.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).WithField("source", a.endpoint).Warn("serial read failed")
			return err
		}
		droppedBefore := decoder.CRCFailures()
		for _, b := range buf[:n] {
			if frame, ok := decoder.PushByte(b); ok {
				onPacket(processor.Packet{Source: a.endpoint, Data: frame.Payload})
			}
		}
		if a.metrics != nil {
			if dropped := decoder.CRCFailures() - droppedBefore; dropped > 0 {
				a.metrics.FramesDroppedCRC.Add(float64(dropped))
			}
		}
	}
}
