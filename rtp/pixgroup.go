package rtp

// PixelGroupSize is the number of bytes in one 4:2:2 10-bit pixel group:
// two pixels (Cb, Y0, Cr, Y1), each a 10-bit sample, packed into 5 bytes.
const PixelGroupSize = 5

// PixelsPerGroup is the number of luma samples in one pixel group.
const PixelsPerGroup = 2

// Endian selects byte order for either the wire-level pg2 bytes or the
// host-side 16-bit buffer a producer/consumer exchanges samples through.
type Endian uint8

// Supported byte orders.
const (
	BigEndian Endian = iota
	LittleEndian
)

// PixelGroup holds the four 10-bit components of one 4:2:2 pixel group.
type PixelGroup struct {
	Cb, Y0, Cr, Y1 uint16 // low 10 bits significant
}

// PackPg2 packs a PixelGroup into 5 wire bytes in pgEndian byte order, the
// bit layout mandated by RFC 4175 §4.3 for 10-bit 4:2:2 video. The four
// 10-bit samples (Cb, Y0, Cr, Y1) are packed MSB-first into the 40-bit
// group regardless of pgEndian; pgEndian only controls which byte of each
// pair of wire bytes holds the more significant bits.
func PackPg2(pg PixelGroup, pgEndian Endian, out []byte) {
	_ = out[4]
	bits := uint64(pg.Cb&0x3ff)<<30 | uint64(pg.Y0&0x3ff)<<20 | uint64(pg.Cr&0x3ff)<<10 | uint64(pg.Y1 & 0x3ff)
	raw := [5]byte{
		byte(bits >> 32),
		byte(bits >> 24),
		byte(bits >> 16),
		byte(bits >> 8),
		byte(bits),
	}
	if pgEndian == BigEndian {
		copy(out[:5], raw[:])
		return
	}
	// LittleEndian pg2: byte-swap within each 2-byte lane, keeping the
	// 40-bit sample stream's component order intact (matches the
	// little-endian pg2 variant the teacher's pixel routines special-case).
	out[0] = raw[1]
	out[1] = raw[0]
	out[2] = raw[3]
	out[3] = raw[2]
	out[4] = raw[4]
}

// UnpackPg2 is the inverse of PackPg2.
func UnpackPg2(in []byte, pgEndian Endian) PixelGroup {
	_ = in[4]
	var raw [5]byte
	if pgEndian == BigEndian {
		copy(raw[:], in[:5])
	} else {
		raw[0] = in[1]
		raw[1] = in[0]
		raw[2] = in[3]
		raw[3] = in[2]
		raw[4] = in[4]
	}
	bits := uint64(raw[0])<<32 | uint64(raw[1])<<24 | uint64(raw[2])<<16 | uint64(raw[3])<<8 | uint64(raw[4])
	return PixelGroup{
		Cb: uint16(bits>>30) & 0x3ff,
		Y0: uint16(bits>>20) & 0x3ff,
		Cr: uint16(bits>>10) & 0x3ff,
		Y1: uint16(bits) & 0x3ff,
	}
}

// bufEndian only matters when a PixelGroup's component values are read from
// or written to a host 16-bit buffer rather than compared directly; this
// stack keeps components as plain uint16 in host order, so BufferSwap is
// provided for callers bridging to a differently-ordered producer buffer.
func BufferSwap(v uint16) uint16 {
	return v<<8 | v>>8
}
