package dht

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Model selects how a frame is interpreted.
type Model int

const (
	DHT11 Model = 11
	DHT22 Model = 22
)

func (m Model) String() string {
	switch m {
	case DHT11:
		return "DHT11"
	case DHT22:
		return "DHT22"
	default:
		return fmt.Sprintf("DHT(%d)", int(m))
	}
}

func (m Model) valid() bool {
	return m == DHT11 || m == DHT22
}

type TemperatureC float64
type RelHumidity float64

func (t TemperatureC) Float64() float64 {
	return float64(t)
}

func (r RelHumidity) Float64() float64 {
	return float64(r)
}

// Values is a decoded temperature/humidity pair. Valid is false until the
// sensor has produced at least one frame that passed the checksum.
type Values struct {
	Temperature TemperatureC
	Humidity    RelHumidity
	Valid       bool
}

// Env converts the values into periph units.
func (v Values) Env(e *physic.Env) {
	e.Temperature = physic.ZeroCelsius + physic.Temperature(math.Round(v.Temperature.Float64()*float64(physic.Celsius)))
	e.Humidity = physic.RelativeHumidity(math.Round(v.Humidity.Float64() * float64(physic.PercentRH)))
}

// SensorState is the previous and current values of one sensor handle, used
// by the plausibility filter.
type SensorState struct {
	Current Values
	Old     Values
}

// begin is called at the start of every attempt.
func (s *SensorState) begin() {
	s.Old = s.Current
}

func (s *SensorState) update(v Values) {
	s.Current = v
}

// plausible rejects readings that are out of range or jump too far from the
// previous values. The checksum is only eight bits and aliases.
func (s *SensorState) plausible(o *Opts) error {
	c := s.Current
	if c.Humidity.Float64() > o.MaxHumidity {
		return fmt.Errorf("%w: humidity [%.2f] above [%.2f]", ErrSanityCheckFailed, c.Humidity, o.MaxHumidity)
	}
	if c.Temperature.Float64() > o.MaxTemperature {
		return fmt.Errorf("%w: temperature [%.2f] above [%.2f]", ErrSanityCheckFailed, c.Temperature, o.MaxTemperature)
	}
	if !s.Old.Valid {
		return nil
	}
	if dt := math.Abs(c.Temperature.Float64() - s.Old.Temperature.Float64()); dt > o.MaxTemperatureStep {
		return fmt.Errorf("%w: temperature step [%.2f]", ErrSanityCheckFailed, dt)
	}
	if dh := math.Abs(c.Humidity.Float64() - s.Old.Humidity.Float64()); dh > o.MaxHumidityStep {
		return fmt.Errorf("%w: humidity step [%.2f]", ErrSanityCheckFailed, dh)
	}
	return nil
}

// Reading is the result of Dev.Read. Status is the status of the attempt
// that ended the retry loop; callers must check it before trusting the values.
type Reading struct {
	Values
	Status   Status
	Attempts int
	Statuses []Status
	Raw      RawFrame
	Time     time.Time
}

// Err returns nil when the reading succeeded.
func (r Reading) Err() error {
	return r.Status.Err()
}

func (r Reading) String() string {
	if !r.Valid {
		return fmt.Sprintf("%v after [%d] attempts", r.Status, r.Attempts)
	}
	return fmt.Sprintf("%.1fC %.1f%%RH %v after [%d] attempts", r.Temperature, r.Humidity, r.Status, r.Attempts)
}

type readingJSON struct {
	Time        time.Time `json:"time"`
	Status      Status    `json:"status"`
	Attempts    int       `json:"attempts"`
	Statuses    []Status  `json:"statuses"`
	Temperature *float64  `json:"temperature_C"`
	Humidity    *float64  `json:"humidity_RH"`
}

// MarshalJSON writes null temperature and humidity when nothing was decoded.
func (r Reading) MarshalJSON() ([]byte, error) {
	rj := readingJSON{
		Time:     r.Time,
		Status:   r.Status,
		Attempts: r.Attempts,
		Statuses: r.Statuses,
	}
	if rj.Statuses == nil {
		rj.Statuses = []Status{}
	}
	if r.Valid {
		t, h := r.Temperature.Float64(), r.Humidity.Float64()
		rj.Temperature, rj.Humidity = &t, &h
	}
	return json.Marshal(rj)
}
