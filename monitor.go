package main

import (
	"context"
	"time"

	"github.com/gr-butler/dht/dht"
	logger "github.com/sirupsen/logrus"
)

func (w *station) StartMonitor(ctx context.Context) {
	logger.Infof("Starting sensor monitor every [%v]", w.cfg.Interval)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.record(ctx, w.dev.Read())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.record(ctx, w.dev.Read())
		}
	}
}

// record fans a finished read out to the buffers, metrics and sinks.
func (w *station) record(ctx context.Context, r dht.Reading) {
	for _, s := range r.Statuses {
		Prom_attemptStatus.WithLabelValues(s.String()).Inc()
	}
	Prom_readAttempts.Set(float64(r.Attempts))

	w.lock.Lock()
	w.last = r
	w.lock.Unlock()

	if r.Status == dht.Success {
		t, h := r.Temperature.Float64(), r.Humidity.Float64()
		logger.Debugf("Read [%v]", r)
		w.temperature.AddItem(t)
		w.humidity.AddItem(h)
		Prom_temperature.Set(t)
		Prom_humidity.Set(h)
		Prom_dewPoint.Set(dewPoint(t, h))
		Prom_apparentTemperature.Set(apparentTemperature(t, h))
		if w.led != nil {
			go w.led.Flash()
		}
	} else {
		logger.Warnf("Read failed [%v] after [%v] attempts", r.Status, r.Attempts)
		Prom_readFailures.Inc()
		if w.led != nil {
			go w.led.Flicker(r.Attempts)
		}
	}

	if w.hub != nil {
		w.hub.Broadcast(w.snapshot())
	}
	if w.pub != nil {
		if err := w.pub.Publish(r); err != nil {
			logger.Errorf("Failed to publish [%v]", err)
		}
	}
	if w.store != nil {
		if err := w.store.WriteReading(ctx, r); err != nil {
			logger.Errorf("Failed to write to db [%v]", err)
		}
	}
}
