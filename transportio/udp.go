package transportio

import (
	"context"
	"net"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/xrce-agent/processor"
)

// UDPAdapter is the datagram transport: one socket, one packet in equals
// one packet out, no reassembly needed since a UDP read never splits or
// merges writes.
type UDPAdapter struct {
	conn *net.UDPConn
	mtu  int
}

// NewUDPAdapter binds a UDP socket at bindAddr ("host:port"), reading
// datagrams up to mtu bytes.
func NewUDPAdapter(bindAddr string, mtu int) (*UDPAdapter, error) {
	addr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &UDPAdapter{conn: conn, mtu: mtu}, nil
}

// LocalAddr returns the socket's bound address, useful when bindAddr used
// port 0 for an ephemeral port.
func (a *UDPAdapter) LocalAddr() net.Addr { return a.conn.LocalAddr() }

// Send writes data as a single datagram to dest.Address.
func (a *UDPAdapter) Send(dest processor.Endpoint, data []byte) error {
	addr, err := net.ResolveUDPAddr("udp", dest.Address)
	if err != nil {
		return err
	}
	_, err = a.conn.WriteToUDP(data, addr)
	return err
}

// Run reads datagrams until ctx is canceled, handing each to onPacket.
func (a *UDPAdapter) Run(ctx context.Context, onPacket func(processor.Packet)) error {
	go func() {
		<-ctx.Done()
		a.conn.Close()
	}()

	buf := make([]byte, a.mtu)
	for {
		n, addr, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Warn("udp read failed")
			return err
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		onPacket(processor.Packet{
			Source: processor.Endpoint{Network: "udp", Address: addr.String()},
			Data:   data,
		})
	}
}

func init() {
	RegisterAdapter("udp", func(config map[string]string) (Adapter, error) {
		mtu := 512
		if v, err := strconv.Atoi(config["mtu"]); err == nil && v > 0 {
			mtu = v
		}
		return NewUDPAdapter(config["bind"], mtu)
	})
}
