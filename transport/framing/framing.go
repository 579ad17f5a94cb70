// Package framing implements the octet-stuffed byte-stream framing used on
// serial and pseudo-terminal transports: BEGIN | SRC | DST | LEN_LSB |
// LEN_MSB | payload[LEN] | CRC_LSB | CRC_MSB, with 0x7E/0x7D escaped inside
// SRC, DST, LEN, payload and CRC.
package framing

import (
	"github.com/samsamfire/xrce-agent/internal/crc"
)

const (
	begin byte = 0x7E
	esc   byte = 0x7D
	xorer byte = 0x20
)

// state is the decoder's position within a frame.
type state uint8

const (
	stateUninitialized state = iota
	stateReadSrc
	stateReadDst
	stateReadLenLSB
	stateReadLenMSB
	stateReadPayload
	stateReadCRCLSB
	stateReadCRCMSB
)

// Frame is one fully decoded, CRC-verified frame.
type Frame struct {
	Src     byte
	Dst     byte
	Payload []byte
}

// Decoder reconstructs frames from a byte stream one octet at a time. It is
// not safe for concurrent use.
type Decoder struct {
	localAddr byte
	maxLen    int

	state      state
	escaped    bool
	src, dst   byte
	length     int
	payload    []byte
	crcRunning crc.CRC16
	crcWant    uint16
	crcShift   uint

	crcFailures int
}

// CRCFailures returns the number of frames rejected so far for a mismatched
// CRC, for a caller that wants to track dropped-frame counts.
func (d *Decoder) CRCFailures() int {
	return d.crcFailures
}

// NewDecoder returns a Decoder that only accepts frames addressed to
// localAddr and whose payload does not exceed maxLen bytes.
func NewDecoder(localAddr byte, maxLen int) *Decoder {
	return &Decoder{localAddr: localAddr, maxLen: maxLen}
}

func (d *Decoder) reset() {
	d.state = stateUninitialized
	d.escaped = false
	d.payload = d.payload[:0]
	d.crcRunning = 0
}

// PushByte feeds one raw octet from the link into the decoder. It returns a
// complete, CRC-verified Frame when one becomes available.
func (d *Decoder) PushByte(b byte) (Frame, bool) {
	// A BEGIN seen mid-frame always restarts framing at READ_SRC, unless it
	// was itself escaped.
	if b == begin && d.state != stateUninitialized {
		d.state = stateReadSrc
		d.escaped = false
		d.payload = d.payload[:0]
		d.crcRunning = 0
		return Frame{}, false
	}

	if d.state == stateUninitialized {
		if b == begin {
			d.state = stateReadSrc
		}
		return Frame{}, false
	}

	if b == esc && !d.escaped {
		d.escaped = true
		return Frame{}, false
	}
	if d.escaped {
		b ^= xorer
		d.escaped = false
	}

	switch d.state {
	case stateReadSrc:
		d.src = b
		d.crcRunning.Single(b)
		d.state = stateReadDst
	case stateReadDst:
		d.dst = b
		d.crcRunning.Single(b)
		d.state = stateReadLenLSB
	case stateReadLenLSB:
		d.length = int(b)
		d.crcRunning.Single(b)
		d.state = stateReadLenMSB
	case stateReadLenMSB:
		d.length |= int(b) << 8
		d.crcRunning.Single(b)
		if d.length > d.maxLen {
			d.reset()
			return Frame{}, false
		}
		if cap(d.payload) < d.length {
			d.payload = make([]byte, 0, d.length)
		}
		if d.length == 0 {
			d.state = stateReadCRCLSB
		} else {
			d.state = stateReadPayload
		}
	case stateReadPayload:
		d.payload = append(d.payload, b)
		d.crcRunning.Single(b)
		if len(d.payload) == d.length {
			d.state = stateReadCRCLSB
		}
	case stateReadCRCLSB:
		d.crcWant = uint16(b)
		d.crcShift = 8
		d.state = stateReadCRCMSB
	case stateReadCRCMSB:
		d.crcWant |= uint16(b) << d.crcShift
		got := uint16(d.crcRunning)
		src, dst := d.src, d.dst
		payload := make([]byte, len(d.payload))
		copy(payload, d.payload)
		d.reset()
		if got != d.crcWant {
			d.crcFailures++
			return Frame{}, false
		}
		if dst != d.localAddr {
			return Frame{}, false
		}
		return Frame{Src: src, Dst: dst, Payload: payload}, true
	}
	return Frame{}, false
}

// Encode returns the framed encoding of payload from src to dst, escaping
// BEGIN/ESC octets within SRC, DST, LEN, payload and CRC.
func Encode(src, dst byte, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+8)
	out = append(out, begin)

	var c crc.CRC16
	writeEscaped := func(b byte) {
		if b == begin || b == esc {
			out = append(out, esc, b^xorer)
		} else {
			out = append(out, b)
		}
	}

	length := len(payload)
	lenLSB, lenMSB := byte(length), byte(length>>8)

	writeEscaped(src)
	c.Single(src)
	writeEscaped(dst)
	c.Single(dst)
	writeEscaped(lenLSB)
	c.Single(lenLSB)
	writeEscaped(lenMSB)
	c.Single(lenMSB)
	for _, b := range payload {
		writeEscaped(b)
		c.Single(b)
	}
	checksum := uint16(c)
	writeEscaped(byte(checksum))
	writeEscaped(byte(checksum >> 8))

	return out
}
