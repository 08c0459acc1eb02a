package dht

import (
	"errors"
	"fmt"
)

// Status is the outcome of a single transaction with the sensor. The numeric
// values match the codes the station has always logged.
type Status int

const (
	Success Status = iota
	IncorrectByteCount
	NoResponse
	ChecksumMismatch
	SanityCheckFailed
)

var (
	ErrNoResponse         = errors.New("dht: no response from sensor")
	ErrIncorrectByteCount = errors.New("dht: incorrect number of bits")
	ErrChecksumMismatch   = errors.New("dht: checksum mismatch")
	ErrSanityCheckFailed  = errors.New("dht: implausible reading")
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case IncorrectByteCount:
		return "incorrect_byte_count"
	case NoResponse:
		return "no_response"
	case ChecksumMismatch:
		return "checksum_mismatch"
	case SanityCheckFailed:
		return "sanity_check_failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText lets statuses appear by name in JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for c := Success; c <= SanityCheckFailed; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("dht: unknown status [%s]", b)
}

// Err returns the sentinel error for s, nil for Success.
func (s Status) Err() error {
	switch s {
	case Success:
		return nil
	case IncorrectByteCount:
		return ErrIncorrectByteCount
	case NoResponse:
		return ErrNoResponse
	case ChecksumMismatch:
		return ErrChecksumMismatch
	case SanityCheckFailed:
		return ErrSanityCheckFailed
	default:
		return fmt.Errorf("dht: unknown status [%d]", int(s))
	}
}

// StatusOf maps an error returned by Decode or the plausibility filter back
// to its Status. Unknown errors are reported as NoResponse, the sensor did
// not give us anything usable.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrIncorrectByteCount):
		return IncorrectByteCount
	case errors.Is(err, ErrChecksumMismatch):
		return ChecksumMismatch
	case errors.Is(err, ErrSanityCheckFailed):
		return SanityCheckFailed
	default:
		return NoResponse
	}
}
