package transportio

import (
	"context"
	"encoding/binary"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/xrce-agent/processor"
)

// tcpState is the reassembler's position within the 2-byte-length-prefixed
// framing TCP uses: a 16-bit little-endian length followed by that many
// message bytes, repeated for as long as the connection stays open.
type tcpState uint8

const (
	tcpBufferEmpty tcpState = iota
	tcpSizeIncomplete
	tcpSizeRead
	tcpMessageIncomplete
	tcpMessageAvailable
)

// tcpReassembler turns a byte stream into complete messages one octet at a
// time, the same style as transport/framing's serial Decoder.
type tcpReassembler struct {
	state  tcpState
	lenBuf [2]byte
	lenPos int
	needed int
	msgBuf []byte
}

func (r *tcpReassembler) feed(b byte) ([]byte, bool) {
	switch r.state {
	case tcpBufferEmpty, tcpSizeIncomplete:
		r.lenBuf[r.lenPos] = b
		r.lenPos++
		if r.lenPos < 2 {
			r.state = tcpSizeIncomplete
			return nil, false
		}
		r.needed = int(binary.LittleEndian.Uint16(r.lenBuf[:]))
		r.msgBuf = make([]byte, 0, r.needed)
		r.lenPos = 0
		r.state = tcpSizeRead
		if r.needed == 0 {
			r.state = tcpMessageAvailable
		}
	case tcpSizeRead, tcpMessageIncomplete:
		r.msgBuf = append(r.msgBuf, b)
		if len(r.msgBuf) < r.needed {
			r.state = tcpMessageIncomplete
			return nil, false
		}
		r.state = tcpMessageAvailable
	}

	if r.state == tcpMessageAvailable {
		msg := r.msgBuf
		r.state = tcpBufferEmpty
		r.msgBuf = nil
		return msg, true
	}
	return nil, false
}

// TCPAdapter is the length-prefixed stream transport: one long-lived
// connection per client, framed as a 2-byte little-endian length followed
// by the message bytes.
type TCPAdapter struct {
	listener *net.TCPListener

	mu    sync.Mutex
	conns map[processor.Endpoint]net.Conn
}

// NewTCPAdapter listens for stream connections at bindAddr.
func NewTCPAdapter(bindAddr string) (*TCPAdapter, error) {
	addr, err := net.ResolveTCPAddr("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPAdapter{listener: ln, conns: make(map[processor.Endpoint]net.Conn)}, nil
}

// LocalAddr returns the listener's bound address.
func (a *TCPAdapter) LocalAddr() net.Addr { return a.listener.Addr() }

// Send frames data with its 2-byte length prefix and writes it to the
// connection already open for dest. ErrNotConnected if none is open: the
// TCP transport never dials out, it only replies on connections the peer
// initiated.
func (a *TCPAdapter) Send(dest processor.Endpoint, data []byte) error {
	a.mu.Lock()
	conn, ok := a.conns[dest]
	a.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}
	framed := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(framed, uint16(len(data)))
	copy(framed[2:], data)
	_, err := conn.Write(framed)
	return err
}

// Run accepts connections until ctx is canceled, spawning one reader
// goroutine per connection.
func (a *TCPAdapter) Run(ctx context.Context, onPacket func(processor.Packet)) error {
	go func() {
		<-ctx.Done()
		a.listener.Close()
	}()

	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go a.handleConn(conn, onPacket)
	}
}

func (a *TCPAdapter) handleConn(conn net.Conn, onPacket func(processor.Packet)) {
	source := processor.Endpoint{Network: "tcp", Address: conn.RemoteAddr().String()}

	a.mu.Lock()
	a.conns[source] = conn
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.conns, source)
		a.mu.Unlock()
		conn.Close()
	}()

	reassembler := &tcpReassembler{}
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			log.WithError(err).WithField("source", source).Debug("tcp connection closed")
			return
		}
		for _, b := range buf[:n] {
			if msg, ok := reassembler.feed(b); ok {
				onPacket(processor.Packet{Source: source, Data: msg})
			}
		}
	}
}

func init() {
	RegisterAdapter("tcp", func(config map[string]string) (Adapter, error) {
		return NewTCPAdapter(config["bind"])
	})
}
