package wire

// SubmessageKind identifies the payload schema of a submessage.
type SubmessageKind uint8

const (
	KindCreateClient   SubmessageKind = 0x01
	KindCreate         SubmessageKind = 0x02
	KindGetInfo        SubmessageKind = 0x03
	KindDelete         SubmessageKind = 0x04
	KindStatusAgent    SubmessageKind = 0x05
	KindStatus         SubmessageKind = 0x06
	KindInfo           SubmessageKind = 0x07
	KindWriteData      SubmessageKind = 0x08
	KindReadData       SubmessageKind = 0x09
	KindData           SubmessageKind = 0x0A
	KindAcknack        SubmessageKind = 0x0B
	KindHeartbeat      SubmessageKind = 0x0C
	KindReset          SubmessageKind = 0x0D
	KindFragment       SubmessageKind = 0x0E
	KindTimestamp      SubmessageKind = 0x0F
	KindTimestampReply SubmessageKind = 0x10
	KindPerformance    SubmessageKind = 0x11
	KindAck            SubmessageKind = 0x12
)

func (k SubmessageKind) String() string {
	switch k {
	case KindCreateClient:
		return "CREATE_CLIENT"
	case KindCreate:
		return "CREATE"
	case KindGetInfo:
		return "GET_INFO"
	case KindDelete:
		return "DELETE"
	case KindStatusAgent:
		return "STATUS_AGENT"
	case KindStatus:
		return "STATUS"
	case KindInfo:
		return "INFO"
	case KindWriteData:
		return "WRITE_DATA"
	case KindReadData:
		return "READ_DATA"
	case KindData:
		return "DATA"
	case KindAcknack:
		return "ACKNACK"
	case KindHeartbeat:
		return "HEARTBEAT"
	case KindReset:
		return "RESET"
	case KindFragment:
		return "FRAGMENT"
	case KindTimestamp:
		return "TIMESTAMP"
	case KindTimestampReply:
		return "TIMESTAMP_REPLY"
	case KindPerformance:
		return "PERFORMANCE"
	case KindAck:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// Submessage flag bits.
const (
	FlagLittleEndian byte = 0x01
	FlagLastFragment byte = 0x02
)

// StreamID identifies a stream within a session.
type StreamID uint8

const (
	StreamNone       StreamID = 0x00
	StreamBestEffort StreamID = 0x01
	StreamReliable   StreamID = 0x80
)

// IsNone reports whether id is the fire-and-forget stream.
func (id StreamID) IsNone() bool { return id == StreamNone }

// IsReliable reports whether id falls in the reliable class (built-in 0x80
// or user-defined 0x81..0xFF).
func (id StreamID) IsReliable() bool { return id >= StreamReliable }

// IsBestEffort reports whether id falls in the best-effort class (built-in
// 0x01 or user-defined 0x02..0x7F).
func (id StreamID) IsBestEffort() bool { return id >= StreamBestEffort && id < StreamReliable }

// SessionID identifies a session. Values below 0x80 carry an explicit
// client key in the message header; values 0x80 and above rely on the
// transport/endpoint mapping instead.
type SessionID uint8

const SessionIDNone SessionID = 0x00

// HasClientKey reports whether the message header for this session id
// carries an explicit client key field.
func (id SessionID) HasClientKey() bool { return id < 0x80 }
