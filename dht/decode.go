package dht

import "fmt"

// Bits turns the falling edge trace into data bits. A trace of 41 edges
// starts at the first data bit; a trace of 42 also caught the end of the
// sensor's acknowledge pulse, which is dropped.
func Bits(trace EdgeTrace) (BitFrame, error) {
	var bits BitFrame
	n := len(trace)
	switch {
	case n == 0:
		return bits, ErrNoResponse
	case n < frameBits+1 || n > frameBits+2:
		return bits, fmt.Errorf("%w: read [%d] bits", ErrIncorrectByteCount, n-1)
	case n == frameBits+2:
		trace = trace[1:]
	}

	for i := 0; i < frameBits; i++ {
		bits[i] = trace[i+1]-trace[i] >= bitThreshold
	}
	return bits, nil
}

// Decode reconstructs and validates a frame from an edge trace. It has no
// side effects; decoding the same trace always gives the same result.
func Decode(trace EdgeTrace) (RawFrame, error) {
	bits, err := Bits(trace)
	if err != nil {
		return RawFrame{}, err
	}
	f := bits.Pack()
	if !f.Checksum() {
		return f, fmt.Errorf("%w: sum [%#x] checksum [%#x]", ErrChecksumMismatch, f.sum(), f[4])
	}
	return f, nil
}
