package dht

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Opts configures a Dev. Zero fields take the value from DefaultOpts.
type Opts struct {
	Model Model

	// StartHold is how long the line is held low to request a reading.
	StartHold time.Duration
	// MaxWait bounds the polling window after the line is released.
	MaxWait time.Duration
	// Cooldown is the pause between attempts. The sensor can lock up if it
	// is triggered more often than about once a second.
	Cooldown    time.Duration
	MaxAttempts int

	MaxTemperature     float64
	MaxHumidity        float64
	MaxTemperatureStep float64
	MaxHumidityStep    float64

	// StrictChecksum compares the checksum byte with the low byte of the sum
	// instead of the historical bitwise test.
	StrictChecksum bool
	// Realtime locks the sampling goroutine to its thread and renices it.
	Realtime bool
	// AlignRelease busy waits the start pulse and releases the line just
	// after a scheduler tick.
	AlignRelease bool

	Clock clockwork.Clock
}

// DefaultOpts is suitable for a DHT22 on a Raspberry Pi.
var DefaultOpts = Opts{
	Model:              DHT22,
	StartHold:          MinStartHold,
	MaxWait:            6 * time.Millisecond,
	Cooldown:           3 * time.Second,
	MaxAttempts:        10,
	MaxTemperature:     40,
	MaxHumidity:        100,
	MaxTemperatureStep: 1,
	MaxHumidityStep:    5,
}

func (o *Opts) withDefaults() Opts {
	r := DefaultOpts
	if o == nil {
		r.Clock = clockwork.NewRealClock()
		return r
	}
	r.StrictChecksum = o.StrictChecksum
	r.Realtime = o.Realtime
	r.AlignRelease = o.AlignRelease
	if o.Model != 0 {
		r.Model = o.Model
	}
	if o.StartHold != 0 {
		r.StartHold = o.StartHold
	}
	if o.MaxWait != 0 {
		r.MaxWait = o.MaxWait
	}
	if o.Cooldown != 0 {
		r.Cooldown = o.Cooldown
	}
	if o.MaxAttempts != 0 {
		r.MaxAttempts = o.MaxAttempts
	}
	if o.MaxTemperature != 0 {
		r.MaxTemperature = o.MaxTemperature
	}
	if o.MaxHumidity != 0 {
		r.MaxHumidity = o.MaxHumidity
	}
	if o.MaxTemperatureStep != 0 {
		r.MaxTemperatureStep = o.MaxTemperatureStep
	}
	if o.MaxHumidityStep != 0 {
		r.MaxHumidityStep = o.MaxHumidityStep
	}
	r.Clock = o.Clock
	if r.Clock == nil {
		r.Clock = clockwork.NewRealClock()
	}
	return r
}

// Dev is a handle to one sensor on one pin.
type Dev struct {
	name  string
	pin   gpio.PinIO
	opts  Opts
	clock clockwork.Clock
	s     edgeSampler

	mu    sync.Mutex // one transaction on the wire at a time
	state SensorState

	cmu  sync.Mutex // guards stop
	stop chan struct{}
	wg   sync.WaitGroup
}

// New returns a handle for the sensor on pin. Configuration errors are the
// only errors it reports; read failures are retried by Read.
func New(pin gpio.PinIO, opts *Opts) (*Dev, error) {
	if pin == nil {
		return nil, errors.New("dht: nil pin")
	}
	o := opts.withDefaults()
	if !o.Model.valid() {
		return nil, fmt.Errorf("dht: invalid sensor model [%d], want 11 or 22", int(o.Model))
	}
	if o.StartHold < MinStartHold {
		return nil, fmt.Errorf("dht: start pulse [%v] shorter than [%v]", o.StartHold, MinStartHold)
	}
	if o.MaxWait <= 0 || o.Cooldown < 0 || o.MaxAttempts < 1 {
		return nil, fmt.Errorf("dht: invalid timing maxWait [%v] cooldown [%v] attempts [%d]", o.MaxWait, o.Cooldown, o.MaxAttempts)
	}

	// idle the line high
	if err := pin.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("dht: %s: %w", pin, err)
	}

	d := &Dev{
		name:  fmt.Sprintf("%s{%s}", o.Model, pin),
		pin:   pin,
		opts:  o,
		clock: o.Clock,
		s: &sampler{
			pin:      pin,
			clock:    o.Clock,
			hold:     o.StartHold,
			maxWait:  o.MaxWait,
			realtime: o.Realtime,
			align:    o.AlignRelease,
		},
	}
	logger.Infof("Created [%v] hold [%v] poll [%v] cooldown [%v]", d, o.StartHold, o.MaxWait, o.Cooldown)
	return d, nil
}

func (d *Dev) String() string {
	return d.name
}

// Read runs sample/decode/check cycles until one passes or the attempt budget
// is spent. It blocks for the whole time, including cooldowns.
func (d *Dev) Read() Reading {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := Reading{Statuses: make([]Status, 0, d.opts.MaxAttempts)}
	for {
		status, raw := d.attempt()
		r.Statuses = append(r.Statuses, status)
		r.Status = status
		r.Attempts = len(r.Statuses)
		if status != NoResponse && status != IncorrectByteCount {
			r.Raw = raw
		}
		if status == Success || r.Attempts >= d.opts.MaxAttempts {
			break
		}
		logger.Debugf("[%v] attempt [%d] failed [%v], trying again in [%v]", d, r.Attempts, status, d.opts.Cooldown)
		if d.opts.Cooldown > 0 {
			d.clock.Sleep(d.opts.Cooldown)
		}
	}

	r.Values = d.state.Current
	r.Time = d.clock.Now()
	if r.Status != Success {
		logger.Warnf("[%v] giving up after [%d] attempts %v", d, r.Attempts, r.Statuses)
	}
	return r
}

func (d *Dev) attempt() (Status, RawFrame) {
	d.state.begin()

	trace, err := d.s.sample()
	if err != nil {
		logger.Errorf("[%v] sampling failed [%v]", d, err)
		return NoResponse, RawFrame{}
	}
	raw, err := Decode(trace)
	if err == nil && d.opts.StrictChecksum && !raw.ChecksumExact() {
		err = fmt.Errorf("%w: strict sum [%#x] checksum [%#x]", ErrChecksumMismatch, byte(raw.sum()), raw[4])
	}
	if err != nil {
		logger.Debugf("[%v] %v", d, err)
		return StatusOf(err), raw
	}

	t, h := raw.Values(d.opts.Model)
	d.state.update(Values{Temperature: t, Humidity: h, Valid: true})
	if err := d.state.plausible(&d.opts); err != nil {
		logger.Debugf("[%v] %v %v", d, raw, err)
		return SanityCheckFailed, raw
	}
	return Success, raw
}

// Last returns the most recently decoded values without touching the sensor.
// The sensor reports the conditions at its previous transaction, so a fresh
// value needs two reads.
func (d *Dev) Last() Values {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Current
}

// Sense implements physic.SenseEnv. Pressure is not measured.
func (d *Dev) Sense(e *physic.Env) error {
	r := d.Read()
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w after %d attempts", err, r.Attempts)
	}
	r.Values.Env(e)
	return nil
}

// SenseContinuous reads the sensor every interval on its own goroutine until
// Halt is called. Failed reads are logged and skipped.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < d.opts.Cooldown {
		return nil, fmt.Errorf("dht: interval [%v] shorter than cooldown [%v]", interval, d.opts.Cooldown)
	}
	d.cmu.Lock()
	defer d.cmu.Unlock()
	d.stopContinuous()

	sensing := make(chan physic.Env)
	d.stop = make(chan struct{})
	d.wg.Add(1)
	go func(stop <-chan struct{}) {
		defer d.wg.Done()
		defer close(sensing)
		d.sensingContinuous(interval, sensing, stop)
	}(d.stop)
	return sensing, nil
}

func (d *Dev) sensingContinuous(interval time.Duration, sensing chan<- physic.Env, stop <-chan struct{}) {
	t := d.clock.NewTicker(interval)
	defer t.Stop()
	for {
		var e physic.Env
		if err := d.Sense(&e); err != nil {
			logger.Errorf("[%v] continuous read failed [%v]", d, err)
		} else {
			select {
			case sensing <- e:
			case <-stop:
				return
			}
		}
		select {
		case <-stop:
			return
		case <-t.Chan():
		}
	}
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	if d.opts.Model == DHT11 {
		e.Temperature = 10 * physic.MilliKelvin
		e.Humidity = physic.PercentRH / 100
	} else {
		e.Temperature = 100 * physic.MilliKelvin
		e.Humidity = physic.PercentRH / 10
	}
	e.Pressure = 0
}

// Halt stops continuous sensing and leaves the line idle high.
func (d *Dev) Halt() error {
	d.cmu.Lock()
	d.stopContinuous()
	d.cmu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pin.Out(gpio.High)
}

// stopContinuous must be called with cmu held.
func (d *Dev) stopContinuous() {
	if d.stop == nil {
		return
	}
	close(d.stop)
	d.stop = nil
	d.wg.Wait()
}

var _ physic.SenseEnv = &Dev{}
