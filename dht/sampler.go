package dht

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
)

const (
	// MinStartHold is the shortest start pulse the sensors accept.
	MinStartHold = 18 * time.Millisecond
	// MaxEdges caps the trace; a frame has at most 42 falling edges.
	MaxEdges = 50

	// loop gaps longer than this during the start pulse are taken as the
	// scheduler taking the CPU away
	schedulerGap  = 20 * time.Microsecond
	maxGaps       = 20
	tickSpanMin   = 9 * time.Millisecond
	tickSpanMax   = 11 * time.Millisecond
	releaseOffset = 11 * time.Millisecond
)

type edgeSampler interface {
	sample() (EdgeTrace, error)
}

// sampler runs one transaction on the wire. Timing is software only and
// therefore best effort: a host that deschedules us inside the polling
// window produces a trace the decoder will reject.
type sampler struct {
	pin      gpio.PinIO
	clock    clockwork.Clock
	hold     time.Duration
	maxWait  time.Duration
	realtime bool
	align    bool
}

func (s *sampler) sample() (EdgeTrace, error) {
	if s.realtime {
		restore, err := raisePriority()
		if err != nil {
			logger.Debugf("Could not raise priority for [%v] [%v]", s.pin, err)
		}
		defer restore()
	}

	if err := s.pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("dht: start pulse on %s: %w", s.pin, err)
	}
	s.holdLow()

	// release the line then listen
	if err := s.pin.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("dht: release %s: %w", s.pin, err)
	}
	if err := s.pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("dht: input mode on %s: %w", s.pin, err)
	}

	trace := s.poll()

	// the trace is complete by now, a failed restore is retried next transaction
	if err := s.pin.Out(gpio.High); err != nil {
		logger.Warnf("Could not idle [%v] high [%v]", s.pin, err)
	}
	return trace, nil
}

// poll spins on the pin until the deadline, recording falling edges.
func (s *sampler) poll() EdgeTrace {
	trace := make(EdgeTrace, 0, MaxEdges)
	start := s.clock.Now()
	last := gpio.Low
	for {
		elapsed := s.clock.Since(start)
		if elapsed >= s.maxWait {
			break
		}
		l := s.pin.Read()
		if last == gpio.High && l == gpio.Low {
			if len(trace) == MaxEdges {
				break
			}
			trace = append(trace, elapsed)
		}
		last = l
	}
	return trace
}

func (s *sampler) holdLow() {
	if !s.align {
		s.clock.Sleep(s.hold)
		return
	}

	// Busy wait the pulse and note where the scheduler interrupted us, then
	// release just after the next expected tick.
	gaps := make([]time.Duration, 0, maxGaps)
	start := s.clock.Now()
	prev := start
	for {
		now := s.clock.Now()
		elapsed := now.Sub(start)
		if elapsed >= s.hold {
			break
		}
		if now.Sub(prev) > schedulerGap && len(gaps) < maxGaps {
			gaps = append(gaps, elapsed)
		}
		prev = now
	}
	if target, ok := releaseTarget(gaps); ok {
		for s.clock.Since(start) < target {
		}
	}
}

// releaseTarget looks for two scheduler gaps one tick apart and returns the
// offset just past the following tick.
func releaseTarget(gaps []time.Duration) (time.Duration, bool) {
	for j := range gaps {
		for i := j + 1; i < len(gaps); i++ {
			if d := gaps[i] - gaps[j]; d > tickSpanMin && d < tickSpanMax {
				return gaps[i] + releaseOffset, true
			}
		}
	}
	return 0, false
}
