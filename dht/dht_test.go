package dht

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

// scripted hands out canned traces, repeating the last one.
type scripted struct {
	traces []EdgeTrace
	errs   []error
	calls  int
}

func (s *scripted) sample() (EdgeTrace, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if len(s.traces) == 0 {
		return nil, err
	}
	if i >= len(s.traces) {
		i = len(s.traces) - 1
	}
	return s.traces[i], err
}

// frame22 encodes DHT22 values.
func frame22(temp, hum float64) RawFrame {
	h := int(math.Round(hum * 10))
	t := int(math.Round(math.Abs(temp) * 10))
	b2 := byte(t >> 8)
	if temp < 0 {
		b2 |= signBit
	}
	return withChecksum(byte(h>>8), byte(h), b2, byte(t))
}

func tr22(temp, hum float64) EdgeTrace {
	return traceFor(frame22(temp, hum), false)
}

func newTestDev(t *testing.T, opts Opts, s edgeSampler) (*Dev, *gpiotest.Pin) {
	t.Helper()
	p := &gpiotest.Pin{N: "GPIO21", Num: 21}
	if opts.Cooldown == 0 {
		opts.Cooldown = time.Millisecond
	}
	d, err := New(p, &opts)
	require.NoError(t, err)
	d.s = s
	return d, p
}

func Test_New(t *testing.T) {
	p := &gpiotest.Pin{N: "GPIO21", Num: 21}

	d, err := New(p, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultOpts.Cooldown, d.opts.Cooldown)
	assert.Equal(t, DHT22, d.opts.Model)
	assert.Equal(t, gpio.High, p.L, "line left idle high")
	assert.Equal(t, fmt.Sprintf("DHT22{%s}", p), d.String())

	d, err = New(p, &Opts{Model: DHT11})
	require.NoError(t, err)
	assert.Equal(t, DHT11, d.opts.Model)
	assert.Equal(t, 10, d.opts.MaxAttempts)

	_, err = New(nil, nil)
	assert.Error(t, err)

	_, err = New(p, &Opts{Model: 33})
	assert.Error(t, err)

	_, err = New(p, &Opts{StartHold: 10 * time.Millisecond})
	assert.Error(t, err)

	_, err = New(p, &Opts{MaxAttempts: -1})
	assert.Error(t, err)
}

func Test_Read_firstAttempt(t *testing.T) {
	d, _ := newTestDev(t, Opts{}, &scripted{traces: []EdgeTrace{traceFor(RawFrame{0x01, 0x90, 0x00, 0xC9, 0x5A}, true)}})

	r := d.Read()
	require.NoError(t, r.Err())
	assert.Equal(t, Success, r.Status)
	assert.Equal(t, 1, r.Attempts)
	assert.Equal(t, []Status{Success}, r.Statuses)
	assert.True(t, r.Valid)
	assert.Equal(t, TemperatureC(20.1), r.Temperature)
	assert.Equal(t, RelHumidity(40.0), r.Humidity)
	assert.Equal(t, RawFrame{0x01, 0x90, 0x00, 0xC9, 0x5A}, r.Raw)
	assert.Equal(t, r.Values, d.Last())
}

func Test_Read_dht11(t *testing.T) {
	d, _ := newTestDev(t, Opts{Model: DHT11}, &scripted{traces: []EdgeTrace{traceFor(RawFrame{45, 0, 26, 0, 71}, false)}})

	r := d.Read()
	require.Equal(t, Success, r.Status)
	assert.Equal(t, TemperatureC(26.0), r.Temperature)
	assert.Equal(t, RelHumidity(45.0), r.Humidity)
}

func Test_Read_retriesDecodeFailures(t *testing.T) {
	s := &scripted{traces: []EdgeTrace{
		nil,
		tr22(20, 40)[:30],
		traceFor(RawFrame{1, 2, 3, 4, 5}, false),
		tr22(20, 40),
	}}
	d, _ := newTestDev(t, Opts{}, s)

	r := d.Read()
	assert.Equal(t, Success, r.Status)
	assert.Equal(t, 4, r.Attempts)
	assert.Equal(t, []Status{NoResponse, IncorrectByteCount, ChecksumMismatch, Success}, r.Statuses)
	assert.Equal(t, 4, s.calls)
}

func Test_Read_sanityStep(t *testing.T) {
	s := &scripted{traces: []EdgeTrace{tr22(20, 40)}}
	d, _ := newTestDev(t, Opts{}, s)
	require.Equal(t, Success, d.Read().Status)

	// 20.0 -> 22.0 is too big a jump; the rejected value becomes the
	// comparison point so a real change is accepted on the next attempt
	s.traces = []EdgeTrace{tr22(22, 40), tr22(21.9, 40)}
	s.calls = 0
	r := d.Read()
	assert.Equal(t, []Status{SanityCheckFailed, Success}, r.Statuses)
	assert.Equal(t, 2, r.Attempts)
	assert.InDelta(t, 21.9, r.Temperature.Float64(), 1e-9)

	s.traces = []EdgeTrace{tr22(21.9, 47.5), tr22(21.9, 47)}
	s.calls = 0
	r = d.Read()
	assert.Equal(t, []Status{SanityCheckFailed, Success}, r.Statuses, "humidity step over 5%")

	// steps at the limit pass
	s.traces = []EdgeTrace{tr22(22.9, 42)}
	s.calls = 0
	assert.Equal(t, Success, d.Read().Status)
}

func Test_Read_sanityRange(t *testing.T) {
	d, _ := newTestDev(t, Opts{MaxAttempts: 2}, &scripted{traces: []EdgeTrace{tr22(20, 100.1)}})
	r := d.Read()
	assert.Equal(t, []Status{SanityCheckFailed, SanityCheckFailed}, r.Statuses)
	assert.ErrorIs(t, r.Err(), ErrSanityCheckFailed)
	// the implausible values are still handed back
	assert.True(t, r.Valid)
	assert.InDelta(t, 100.1, r.Humidity.Float64(), 1e-9)

	d, _ = newTestDev(t, Opts{MaxAttempts: 1}, &scripted{traces: []EdgeTrace{tr22(40.1, 50)}})
	assert.Equal(t, SanityCheckFailed, d.Read().Status)

	d, _ = newTestDev(t, Opts{MaxAttempts: 1}, &scripted{traces: []EdgeTrace{tr22(40, 100)}})
	assert.Equal(t, Success, d.Read().Status)

	d, _ = newTestDev(t, Opts{MaxAttempts: 1}, &scripted{traces: []EdgeTrace{tr22(-12.5, 80)}})
	r = d.Read()
	assert.Equal(t, Success, r.Status)
	assert.Equal(t, TemperatureC(-12.5), r.Temperature)
}

func Test_Read_exhausted(t *testing.T) {
	s := &scripted{}
	d, _ := newTestDev(t, Opts{}, s)

	r := d.Read()
	assert.Equal(t, NoResponse, r.Status)
	assert.Equal(t, 10, r.Attempts)
	assert.Len(t, r.Statuses, 10)
	for _, st := range r.Statuses {
		assert.Equal(t, NoResponse, st)
	}
	assert.False(t, r.Valid)
	assert.ErrorIs(t, r.Err(), ErrNoResponse)
	assert.Equal(t, 10, s.calls)

	js, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(js), `"temperature_C":null`)
	assert.Contains(t, string(js), `"status":"no_response"`)
}

func Test_Read_samplerError(t *testing.T) {
	s := &scripted{
		traces: []EdgeTrace{nil, tr22(20, 40)},
		errs:   []error{errors.New("gpio busy")},
	}
	d, _ := newTestDev(t, Opts{}, s)
	r := d.Read()
	assert.Equal(t, []Status{NoResponse, Success}, r.Statuses)
}

func Test_Read_keepsLastValuesOnFailure(t *testing.T) {
	s := &scripted{traces: []EdgeTrace{tr22(20, 40)}}
	d, _ := newTestDev(t, Opts{MaxAttempts: 3}, s)
	require.Equal(t, Success, d.Read().Status)

	s.traces = nil
	r := d.Read()
	assert.Equal(t, NoResponse, r.Status)
	assert.True(t, r.Valid)
	assert.Equal(t, TemperatureC(20), r.Temperature)
}

func Test_Read_strictChecksum(t *testing.T) {
	weak := traceFor(RawFrame{0x01, 0x90, 0x00, 0xC9, 0x58}, false)

	d, _ := newTestDev(t, Opts{MaxAttempts: 1}, &scripted{traces: []EdgeTrace{weak}})
	assert.Equal(t, Success, d.Read().Status)

	d, _ = newTestDev(t, Opts{MaxAttempts: 1, StrictChecksum: true}, &scripted{traces: []EdgeTrace{weak}})
	r := d.Read()
	assert.Equal(t, ChecksumMismatch, r.Status)
	assert.False(t, r.Valid)
}

func Test_Read_cooldown(t *testing.T) {
	fc := clockwork.NewFakeClock()
	start := fc.Now()
	d, _ := newTestDev(t, Opts{MaxAttempts: 3, Cooldown: 3 * time.Second, Clock: fc}, &scripted{})

	done := make(chan Reading)
	go func() { done <- d.Read() }()
	for i := 0; i < 2; i++ {
		fc.BlockUntil(1)
		fc.Advance(3 * time.Second)
	}
	r := <-done

	assert.Equal(t, 3, r.Attempts)
	assert.Equal(t, 6*time.Second, fc.Since(start), "no sleep after the last attempt")
	assert.Equal(t, start.Add(6*time.Second), r.Time)
}

func Test_Sense(t *testing.T) {
	d, _ := newTestDev(t, Opts{}, &scripted{traces: []EdgeTrace{tr22(20.1, 40)}})

	var e physic.Env
	require.NoError(t, d.Sense(&e))
	assert.InDelta(t, 20.1, e.Temperature.Celsius(), 1e-6)
	assert.Equal(t, 40*physic.PercentRH, e.Humidity)

	d, _ = newTestDev(t, Opts{MaxAttempts: 2}, &scripted{})
	err := d.Sense(&e)
	assert.ErrorIs(t, err, ErrNoResponse)
}

func Test_SenseContinuous(t *testing.T) {
	d, _ := newTestDev(t, Opts{}, &scripted{traces: []EdgeTrace{tr22(20, 40)}})

	_, err := d.SenseContinuous(time.Microsecond)
	assert.Error(t, err, "faster than the cooldown")

	ch, err := d.SenseContinuous(5 * time.Millisecond)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		e := <-ch
		assert.InDelta(t, 20.0, e.Temperature.Celsius(), 1e-6)
	}
	require.NoError(t, d.Halt())
	for range ch {
	}
}

func Test_Precision(t *testing.T) {
	d, _ := newTestDev(t, Opts{Model: DHT11}, &scripted{})
	var e physic.Env
	d.Precision(&e)
	assert.Equal(t, 10*physic.MilliKelvin, e.Temperature)

	d, _ = newTestDev(t, Opts{}, &scripted{})
	d.Precision(&e)
	assert.Equal(t, 100*physic.MilliKelvin, e.Temperature)
	assert.Equal(t, physic.PercentRH/10, e.Humidity)
}

func Test_Halt(t *testing.T) {
	d, p := newTestDev(t, Opts{}, &scripted{})
	require.NoError(t, p.Out(gpio.Low))
	require.NoError(t, d.Halt())
	assert.Equal(t, gpio.High, p.L)
}

func Test_Status(t *testing.T) {
	assert.Equal(t, "checksum_mismatch", ChecksumMismatch.String())
	assert.Equal(t, 2, int(NoResponse))
	assert.NoError(t, Success.Err())
	for _, s := range []Status{IncorrectByteCount, NoResponse, ChecksumMismatch, SanityCheckFailed} {
		assert.Equal(t, s, StatusOf(s.Err()))
	}

	var got []Status
	require.NoError(t, json.Unmarshal([]byte(`["no_response","success"]`), &got))
	assert.Equal(t, []Status{NoResponse, Success}, got)
	assert.Error(t, json.Unmarshal([]byte(`["bogus"]`), &got))
}
