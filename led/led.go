package led

import (
	"sync"
	"time"

	"github.com/gr-butler/dht/env"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
)

// LED shows reader activity: a flash for each good reading, a flicker of one
// pulse per failed attempt when a read gives up.
type LED struct {
	Name    string
	lock    sync.Mutex
	on      bool
	gpioPin gpio.PinOut
	flash   time.Duration
}

func NewLED(name string, pin gpio.PinOut) *LED {
	if pin == nil {
		logger.Errorf("No pin for LED [%v]", name)
	} else {
		logger.Infof("Creating new LED on pin [%v] called [%v]", pin, name)
	}
	l := &LED{
		Name:    name,
		gpioPin: pin,
		flash:   env.LEDFlashDuration,
	}
	l.Off()
	return l
}

func (l *LED) On() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.on = true
	if l.gpioPin != nil {
		_ = l.gpioPin.Out(gpio.High)
	}
}

func (l *LED) Off() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.on = false
	if l.gpioPin != nil {
		_ = l.gpioPin.Out(gpio.Low)
	}
}

// Flash inverts the LED briefly. A flash already in progress swallows the
// request rather than queueing it.
func (l *LED) Flash() {
	if l.gpioPin == nil {
		return
	}
	if !l.lock.TryLock() {
		logger.Debugf("LED [%v] busy", l.Name)
		return
	}
	defer l.lock.Unlock()
	l.pulse(gpio.Level(!l.on))
}

func (l *LED) Flicker(pulses int) {
	if l.gpioPin == nil {
		return
	}
	if pulses < 1 || pulses > 100 {
		// reject daft or excessive requests
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	for i := 0; i < pulses; i++ {
		l.pulse(gpio.Level(!l.on))
		time.Sleep(l.flash)
	}
}

func (l *LED) pulse(level gpio.Level) {
	_ = l.gpioPin.Out(level)
	time.Sleep(l.flash)
	_ = l.gpioPin.Out(!level)
}

func (l *LED) IsOn() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.on
}
