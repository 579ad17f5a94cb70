package wire

import "encoding/binary"

// CreationModeFlags carries the REUSE/REPLACE bits of a CREATE payload.
type CreationModeFlags uint8

const (
	ModeReuse   CreationModeFlags = 0x01
	ModeReplace CreationModeFlags = 0x02
)

func (f CreationModeFlags) Reuse() bool   { return f&ModeReuse != 0 }
func (f CreationModeFlags) Replace() bool { return f&ModeReplace != 0 }

const createPayloadFixedSize = 2 + 2 + 2 + 1 + 2 // request_id, object_id, parent_id, mode, representation length

// CreatePayload is the CREATE submessage payload: a request to construct
// (or reuse/replace) an entity at ObjectID under ParentID, from
// Representation bytes whose kind is the low nibble of ObjectID.
type CreatePayload struct {
	RequestID      uint16
	ObjectID       ObjectID
	ParentID       ObjectID
	Mode           CreationModeFlags
	Representation []byte
}

func (p CreatePayload) Encode(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, p.RequestID)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.ObjectID))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.ParentID))
	dst = append(dst, byte(p.Mode))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(p.Representation)))
	dst = append(dst, p.Representation...)
	return dst
}

func DecodeCreatePayload(data []byte) (CreatePayload, error) {
	if len(data) < createPayloadFixedSize {
		return CreatePayload{}, ErrInvalidData
	}
	repLen := int(binary.LittleEndian.Uint16(data[7:9]))
	if len(data) < createPayloadFixedSize+repLen {
		return CreatePayload{}, ErrInvalidData
	}
	return CreatePayload{
		RequestID:      binary.LittleEndian.Uint16(data[0:2]),
		ObjectID:       ObjectID(binary.LittleEndian.Uint16(data[2:4])),
		ParentID:       ObjectID(binary.LittleEndian.Uint16(data[4:6])),
		Mode:           CreationModeFlags(data[6]),
		Representation: data[createPayloadFixedSize : createPayloadFixedSize+repLen],
	}, nil
}

const deletePayloadSize = 2 + 2

// DeletePayload is the DELETE submessage payload.
type DeletePayload struct {
	RequestID uint16
	ObjectID  ObjectID
}

func (p DeletePayload) Encode(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, p.RequestID)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.ObjectID))
	return dst
}

func DecodeDeletePayload(data []byte) (DeletePayload, error) {
	if len(data) < deletePayloadSize {
		return DeletePayload{}, ErrInvalidData
	}
	return DeletePayload{
		RequestID: binary.LittleEndian.Uint16(data[0:2]),
		ObjectID:  ObjectID(binary.LittleEndian.Uint16(data[2:4])),
	}, nil
}

const writeDataPayloadFixedSize = 2 // object_id

// WriteDataPayload is the WRITE_DATA submessage payload: a sample written
// to a datawriter.
type WriteDataPayload struct {
	ObjectID ObjectID
	Sample   []byte
}

func (p WriteDataPayload) Encode(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.ObjectID))
	dst = append(dst, p.Sample...)
	return dst
}

func DecodeWriteDataPayload(data []byte) (WriteDataPayload, error) {
	if len(data) < writeDataPayloadFixedSize {
		return WriteDataPayload{}, ErrInvalidData
	}
	return WriteDataPayload{
		ObjectID: ObjectID(binary.LittleEndian.Uint16(data[0:2])),
		Sample:   data[writeDataPayloadFixedSize:],
	}, nil
}

const readDataPayloadSize = 2 + 1 + 1 // object_id, return_stream_id, max_samples... kept minimal

// ReadDataPayload is the READ_DATA submessage payload: a standing read
// request against a datareader, naming the stream id deliveries should
// arrive on.
type ReadDataPayload struct {
	ObjectID       ObjectID
	ReturnStreamID StreamID
	MaxSamples     uint8 // carried on the wire only; the processor delivers every sample as it arrives whatever its value
}

func (p ReadDataPayload) Encode(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.ObjectID))
	dst = append(dst, byte(p.ReturnStreamID), p.MaxSamples)
	return dst
}

func DecodeReadDataPayload(data []byte) (ReadDataPayload, error) {
	if len(data) < readDataPayloadSize {
		return ReadDataPayload{}, ErrInvalidData
	}
	return ReadDataPayload{
		ObjectID:       ObjectID(binary.LittleEndian.Uint16(data[0:2])),
		ReturnStreamID: StreamID(data[2]),
		MaxSamples:     data[3],
	}, nil
}

const getInfoPayloadSize = 2 + 2 // request_id, object_id

// GetInfoPayload is the GET_INFO submessage payload.
type GetInfoPayload struct {
	RequestID uint16
	ObjectID  ObjectID
}

func (p GetInfoPayload) Encode(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, p.RequestID)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.ObjectID))
	return dst
}

func DecodeGetInfoPayload(data []byte) (GetInfoPayload, error) {
	if len(data) < getInfoPayloadSize {
		return GetInfoPayload{}, ErrInvalidData
	}
	return GetInfoPayload{
		RequestID: binary.LittleEndian.Uint16(data[0:2]),
		ObjectID:  ObjectID(binary.LittleEndian.Uint16(data[2:4])),
	}, nil
}

const infoPayloadFixedSize = 2 + 2 // request_id, object_id, then opaque info blob

// InfoPayload is the agent's reply to GET_INFO: an opaque descriptive blob
// (entity metadata) the processor fills in from the proxy-client tree.
type InfoPayload struct {
	RequestID uint16
	ObjectID  ObjectID
	Info      []byte
}

func (p InfoPayload) Encode(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, p.RequestID)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.ObjectID))
	dst = append(dst, p.Info...)
	return dst
}

func DecodeInfoPayload(data []byte) (InfoPayload, error) {
	if len(data) < infoPayloadFixedSize {
		return InfoPayload{}, ErrInvalidData
	}
	return InfoPayload{
		RequestID: binary.LittleEndian.Uint16(data[0:2]),
		ObjectID:  ObjectID(binary.LittleEndian.Uint16(data[2:4])),
		Info:      data[infoPayloadFixedSize:],
	}, nil
}

// DataPayload is the DATA submessage payload: a sample delivered to a
// datareader's chosen return stream.
type DataPayload struct {
	ObjectID ObjectID
	Sample   []byte
}

func (p DataPayload) Encode(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.ObjectID))
	dst = append(dst, p.Sample...)
	return dst
}

func DecodeDataPayload(data []byte) (DataPayload, error) {
	if len(data) < 2 {
		return DataPayload{}, ErrInvalidData
	}
	return DataPayload{
		ObjectID: ObjectID(binary.LittleEndian.Uint16(data[0:2])),
		Sample:   data[2:],
	}, nil
}
