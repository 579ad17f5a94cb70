package wire

import (
	"encoding/binary"

	"github.com/samsamfire/xrce-agent/internal/seqnum"
)

// StatusPayload is the STATUS submessage payload: the agent's reply to a
// CREATE_CLIENT, CREATE or DELETE request, or to a GET_INFO naming an
// unknown object. WRITE_DATA and READ_DATA get no STATUS reply.
type StatusPayload struct {
	RequestID uint16
	ObjectID  ObjectID
	Op        OperationKind
	Status    StatusCode
}

const statusPayloadSize = 2 + 2 + 1 + 1

func (p StatusPayload) Encode(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, p.RequestID)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.ObjectID))
	dst = append(dst, byte(p.Op), byte(p.Status))
	return dst
}

func DecodeStatusPayload(data []byte) (StatusPayload, error) {
	if len(data) < statusPayloadSize {
		return StatusPayload{}, ErrInvalidData
	}
	return StatusPayload{
		RequestID: binary.LittleEndian.Uint16(data[0:2]),
		ObjectID:  ObjectID(binary.LittleEndian.Uint16(data[2:4])),
		Op:        OperationKind(data[4]),
		Status:    StatusCode(data[5]),
	}, nil
}

// AcknackPayload is the ACKNACK submessage payload sent by a peer to report
// which sequence numbers in [FirstUnacked, FirstUnacked+15] it is missing.
type AcknackPayload struct {
	FirstUnacked seqnum.SeqNum
	Bitmap       uint16
}

const acknackPayloadSize = 2 + 2

func (p AcknackPayload) Encode(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.FirstUnacked))
	dst = binary.LittleEndian.AppendUint16(dst, p.Bitmap)
	return dst
}

func DecodeAcknackPayload(data []byte) (AcknackPayload, error) {
	if len(data) < acknackPayloadSize {
		return AcknackPayload{}, ErrInvalidData
	}
	return AcknackPayload{
		FirstUnacked: seqnum.SeqNum(binary.LittleEndian.Uint16(data[0:2])),
		Bitmap:       binary.LittleEndian.Uint16(data[2:4]),
	}, nil
}

// HeartbeatPayload is the HEARTBEAT submessage payload describing the
// sender's reliable output-stream window.
type HeartbeatPayload struct {
	FirstUnacked seqnum.SeqNum
	LastUnacked  seqnum.SeqNum
}

const heartbeatPayloadSize = 2 + 2

func (p HeartbeatPayload) Encode(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.FirstUnacked))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.LastUnacked))
	return dst
}

func DecodeHeartbeatPayload(data []byte) (HeartbeatPayload, error) {
	if len(data) < heartbeatPayloadSize {
		return HeartbeatPayload{}, ErrInvalidData
	}
	return HeartbeatPayload{
		FirstUnacked: seqnum.SeqNum(binary.LittleEndian.Uint16(data[0:2])),
		LastUnacked:  seqnum.SeqNum(binary.LittleEndian.Uint16(data[2:4])),
	}, nil
}
