package frame

import "encoding/binary"

// CRC32/MPEG-2: poly 0x04C11DB7, init 0xFFFFFFFF, no bit reflection, no
// final xor.
const crcPoly = 0x04C11DB7

// Checksum computes the frame CRC the way the flight hardware does: the
// input is zero-padded to a multiple of four bytes, each 32-bit word is
// byte-swapped from little to big endian, and the unreflected CRC32/MPEG-2
// runs over the result.
func Checksum(data []byte) uint32 {
	padded := make([]byte, (len(data)+3)&^3)
	copy(padded, data)

	crc := uint32(0xFFFFFFFF)
	for i := 0; i < len(padded); i += 4 {
		word := binary.LittleEndian.Uint32(padded[i:])
		var be [4]byte
		binary.BigEndian.PutUint32(be[:], word)
		for _, b := range be {
			crc = crcByte(crc, b)
		}
	}
	return crc
}

func crcByte(crc uint32, b byte) uint32 {
	cur := uint32(b) << 24
	for i := 0; i < 8; i++ {
		if (crc^cur)&0x80000000 != 0 {
			crc = crc<<1 ^ crcPoly
		} else {
			crc <<= 1
		}
		cur <<= 1
	}
	return crc
}
