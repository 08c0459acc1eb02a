package dht

import (
	"fmt"
	"time"
)

// EdgeTrace holds the offsets, from the start of polling, at which the data
// line went from high to low.
type EdgeTrace []time.Duration

// BitFrame is one transaction worth of data bits, most significant first.
type BitFrame [frameBits]bool

// RawFrame is humidity high/low, temperature high/low and the checksum.
type RawFrame [frameBytes]byte

const (
	frameBits  = 40
	frameBytes = frameBits / 8

	// A 0 bit is ~80us between falling edges, a 1 bit ~120us.
	bitThreshold = 100 * time.Microsecond

	signBit = 0x80
)

// Pack packs the bits MSB first into five bytes.
func (b BitFrame) Pack() RawFrame {
	var f RawFrame
	for i, set := range b {
		if set {
			f[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return f
}

func (f RawFrame) sum() int {
	return int(f[0]) + int(f[1]) + int(f[2]) + int(f[3])
}

// Checksum reports whether the frame passes the sensor checksum as the
// station has always applied it: every bit set in the checksum byte must also
// be set in the sum of the data bytes. This accepts some corrupted frames that
// a modular comparison would not, see ChecksumExact.
func (f RawFrame) Checksum() bool {
	return f.sum()&int(f[4]) == int(f[4])
}

// ChecksumExact compares the low byte of the data sum with the checksum byte.
func (f RawFrame) ChecksumExact() bool {
	return byte(f.sum()) == f[4]
}

// Values interprets the frame for the given sensor model.
func (f RawFrame) Values(m Model) (TemperatureC, RelHumidity) {
	if m == DHT11 {
		// integral byte then hundredths; the sign bit is masked but never applied
		t := float64(f[2]&^signBit) + float64(f[3])/100
		h := float64(f[0]) + float64(f[1])/100
		return TemperatureC(t), RelHumidity(h)
	}
	h := float64(int(f[0])<<8|int(f[1])) / 10
	t := float64(int(f[2]&^signBit)<<8|int(f[3])) / 10
	if f[2]&signBit != 0 {
		t = -t
	}
	return TemperatureC(t), RelHumidity(h)
}

func (f RawFrame) String() string {
	return fmt.Sprintf("[%02x %02x %02x %02x | %02x]", f[0], f[1], f[2], f[3], f[4])
}
