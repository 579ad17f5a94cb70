package wire

import "encoding/binary"

// AgentCookie is the magic value every CREATE_CLIENT payload must carry.
var AgentCookie = [4]byte{'X', 'R', 'C', 'E'}

// AgentVersionMajor/Minor are the protocol version this agent implements.
// A CREATE_CLIENT whose major version differs is rejected as incompatible.
const (
	AgentVersionMajor byte = 2
	AgentVersionMinor byte = 0
)

const createClientPayloadSize = 4 + 2 + 2 + 8 + 4 + 1 + 2

// CreateClientPayload is the CREATE_CLIENT submessage payload: the
// handshake a client sends to register (or re-register) with the agent.
type CreateClientPayload struct {
	Cookie          [4]byte
	VersionMajor    byte
	VersionMinor    byte
	Vendor          uint16
	Timestamp       int64 // client-supplied, unix nanoseconds
	ClientKey       uint32
	RequestedSessID SessionID
	MTU             uint16
}

// Validate checks the cookie and major protocol version, mapping a
// mismatch to the status the agent must reply with.
func (p CreateClientPayload) Validate() error {
	if p.Cookie != AgentCookie {
		return ErrInvalidData
	}
	if p.VersionMajor != AgentVersionMajor {
		return ErrIncompatible
	}
	return nil
}

// Encode appends the wire encoding of p to dst.
func (p CreateClientPayload) Encode(dst []byte) []byte {
	dst = append(dst, p.Cookie[:]...)
	dst = append(dst, p.VersionMajor, p.VersionMinor)
	dst = binary.LittleEndian.AppendUint16(dst, p.Vendor)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(p.Timestamp))
	dst = binary.LittleEndian.AppendUint32(dst, p.ClientKey)
	dst = append(dst, byte(p.RequestedSessID))
	dst = binary.LittleEndian.AppendUint16(dst, p.MTU)
	return dst
}

// DecodeCreateClientPayload parses a CREATE_CLIENT payload, failing with
// ErrInvalidData on underflow.
func DecodeCreateClientPayload(data []byte) (CreateClientPayload, error) {
	if len(data) < createClientPayloadSize {
		return CreateClientPayload{}, ErrInvalidData
	}
	var p CreateClientPayload
	copy(p.Cookie[:], data[0:4])
	p.VersionMajor = data[4]
	p.VersionMinor = data[5]
	p.Vendor = binary.LittleEndian.Uint16(data[6:8])
	p.Timestamp = int64(binary.LittleEndian.Uint64(data[8:16]))
	p.ClientKey = binary.LittleEndian.Uint32(data[16:20])
	p.RequestedSessID = SessionID(data[20])
	p.MTU = binary.LittleEndian.Uint16(data[21:23])
	return p, nil
}
