// Package frame implements the 14-byte wire frame spoken between the ground
// software and the vehicle: a header byte, 40 bits of bit-packed routing
// fields, a 4-byte payload, per-byte bit reversal, and a trailing
// CRC32/MPEG-2.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// HeaderID is the first byte of every frame, before bit reversal.
	HeaderID = 0x05

	// WireHeader is HeaderID after per-byte bit reversal: the byte that
	// actually appears first on the wire. Receivers resynchronize on it.
	WireHeader = 0xA0

	// EncodedSize is the on-wire size of one frame.
	EncodedSize = 14

	rawSize     = 10 // header + packed fields + payload, before the CRC
	payloadSize = 4
)

var (
	ErrShortFrame = errors.New("frame: too few bytes")
	ErrBadCRC     = errors.New("frame: CRC mismatch")
	ErrBadHeader  = errors.New("frame: bad header byte")
)

// Frame is one protocol message. SERVICE frames carry actuator commands from
// the ground software to the vehicle; FEED frames carry sensor readings and
// servo positions back.
type Frame struct {
	Destination uint8 // 5 bits
	Priority    uint8 // 2 bits
	Action      uint8 // 4 bits
	Source      uint8 // 5 bits
	DeviceType  uint8 // 6 bits
	DeviceID    uint8 // 6 bits
	DataType    uint8 // 4 bits
	Operation   uint8 // 8 bits
	Payload     [payloadSize]byte
}

// Field widths in bits, in wire order. They total 40 bits exactly.
var fieldWidths = [8]int{5, 2, 4, 5, 6, 6, 4, 8}

func (f *Frame) fields() [8]uint8 {
	return [8]uint8{
		f.Destination, f.Priority, f.Action, f.Source,
		f.DeviceType, f.DeviceID, f.DataType, f.Operation,
	}
}

// Encode serializes the frame to its 14-byte wire form.
func (f *Frame) Encode() []byte {
	raw := make([]byte, rawSize)
	raw[0] = HeaderID
	packFields(f, raw[1:6])
	copy(raw[6:], f.Payload[:])
	for i, b := range raw {
		raw[i] = reverseByte(b)
	}
	out := make([]byte, 0, EncodedSize)
	out = append(out, raw...)
	out = binary.LittleEndian.AppendUint32(out, Checksum(raw))
	return out
}

// Decode parses one 14-byte wire frame, verifying the CRC and header.
func Decode(buf []byte) (Frame, error) {
	if len(buf) < EncodedSize {
		return Frame{}, fmt.Errorf("%w: got %d, want %d", ErrShortFrame, len(buf), EncodedSize)
	}
	want := binary.LittleEndian.Uint32(buf[rawSize:EncodedSize])
	if got := Checksum(buf[:rawSize]); got != want {
		return Frame{}, fmt.Errorf("%w: computed %08x, frame carries %08x", ErrBadCRC, got, want)
	}
	raw := make([]byte, rawSize)
	for i, b := range buf[:rawSize] {
		raw[i] = reverseByte(b)
	}
	if raw[0] != HeaderID {
		return Frame{}, fmt.Errorf("%w: %#02x", ErrBadHeader, raw[0])
	}
	var f Frame
	unpackFields(raw[1:6], &f)
	copy(f.Payload[:], raw[6:])
	return f, nil
}

// packFields bit-packs the eight routing fields MSB-first into out, which
// must be 5 bytes.
func packFields(f *Frame, out []byte) {
	vals := f.fields()
	bit := 0
	for i, v := range vals {
		for w := fieldWidths[i] - 1; w >= 0; w-- {
			if v&(1<<uint(w)) != 0 {
				out[bit/8] |= 1 << uint(7-bit%8)
			}
			bit++
		}
	}
}

func unpackFields(in []byte, f *Frame) {
	var vals [8]uint8
	bit := 0
	for i := range vals {
		var v uint8
		for w := 0; w < fieldWidths[i]; w++ {
			v <<= 1
			if in[bit/8]&(1<<uint(7-bit%8)) != 0 {
				v |= 1
			}
			bit++
		}
		vals[i] = v
	}
	f.Destination, f.Priority, f.Action, f.Source = vals[0], vals[1], vals[2], vals[3]
	f.DeviceType, f.DeviceID, f.DataType, f.Operation = vals[4], vals[5], vals[6], vals[7]
}

// reverseByte flips the bit order within a single byte.
func reverseByte(b byte) byte {
	b = b>>4 | b<<4
	b = (b&0xCC)>>2 | (b&0x33)<<2
	b = (b&0xAA)>>1 | (b&0x55)<<1
	return b
}

// Int16Payload builds the payload for an int16 value (servo positions).
func Int16Payload(v int16) [payloadSize]byte {
	var p [payloadSize]byte
	binary.LittleEndian.PutUint16(p[:], uint16(v))
	return p
}

// Int16 reads the payload as an int16.
func (f *Frame) Int16() int16 {
	return int16(binary.LittleEndian.Uint16(f.Payload[:]))
}

// Float32Payload builds the payload for a float32 value (sensor readings).
func Float32Payload(v float32) [payloadSize]byte {
	var p [payloadSize]byte
	binary.LittleEndian.PutUint32(p[:], math.Float32bits(v))
	return p
}

// Float32 reads the payload as a float32.
func (f *Frame) Float32() float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(f.Payload[:]))
}

// Value decodes the payload according to the frame's data type. Unknown data
// types yield the raw payload bytes.
func (f *Frame) Value() any {
	switch f.DataType {
	case DataInt16:
		return int(f.Int16())
	case DataFloat32:
		return float64(f.Float32())
	case DataNone:
		return nil
	default:
		p := f.Payload
		return p[:]
	}
}
