package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gr-butler/dht/buffer"
	"github.com/gr-butler/dht/config"
	"github.com/gr-butler/dht/dht"
	"github.com/gr-butler/dht/env"
	"github.com/gr-butler/dht/led"
	"github.com/gr-butler/dht/publish"
	"github.com/gr-butler/dht/store"
	"github.com/gr-butler/dht/stream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	logger "github.com/sirupsen/logrus"
)

const version = "GRB-DHT-1.0.0"

type reader interface {
	Read() dht.Reading
	Halt() error
}

type publisher interface {
	Publish(dht.Reading) error
	Close()
}

type station struct {
	cfg  config.Config
	args env.Args
	dev  reader
	led  *led.LED

	temperature *buffer.SampleBuffer
	humidity    *buffer.SampleBuffer

	store *store.Store
	pub   publisher
	hub   *stream.Hub

	lock sync.Mutex
	last dht.Reading
}

type webdata struct {
	TimeNow     string       `json:"time"`
	Status      string       `json:"status"`
	Attempts    int          `json:"attempts"`
	Statuses    []dht.Status `json:"statuses"`
	Temperature *float64     `json:"temperature_C"`
	Humidity    *float64     `json:"humidity_RH"`
	DewPoint    *float64     `json:"dew_point_C,omitempty"`
	Apparent    *float64     `json:"apparent_C,omitempty"`
	TempAvg     float64      `json:"temperature_avg_C"`
	TempMin     float64      `json:"temperature_min_C"`
	TempMax     float64      `json:"temperature_max_C"`
	HumidityAvg float64      `json:"humidity_avg_RH"`
	HumidityMin float64      `json:"humidity_min_RH"`
	HumidityMax float64      `json:"humidity_max_RH"`
}

var Prom_humidity = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "relative_humidity",
		Help: "Relative Humidity",
	},
)

var Prom_temperature = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "temperature",
		Help: "Temperature C",
	},
)

var Prom_dewPoint = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "dew_point",
		Help: "Dew point C",
	},
)

var Prom_apparentTemperature = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "apparent_temperature",
		Help: "Apparent temperature C",
	},
)

var Prom_readAttempts = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "dht_read_attempts",
		Help: "Attempts used by the last read",
	},
)

var Prom_attemptStatus = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dht_attempt_status_total",
		Help: "Outcome of every sensor attempt",
	},
	[]string{"status"},
)

var Prom_readFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "dht_read_failures_total",
		Help: "Reads that gave up without a good value",
	},
)

// called by prometheus
func init() {
	logger.Infof("%v: Initialize prometheus...", time.Now().Format(time.RFC822))
	prometheus.MustRegister(
		Prom_humidity,
		Prom_temperature,
		Prom_dewPoint,
		Prom_apparentTemperature,
		Prom_readAttempts,
		Prom_attemptStatus,
		Prom_readFailures)
}

func main() {
	logger.Infof("Starting DHT station [%v]", version)

	args := env.Args{
		Test:       flag.Bool("test", false, "test mode, does not send met office data"),
		NoWow:      flag.Bool("nowow", false, "never send met office data"),
		Verbose:    flag.Bool("verbose", false, "log every attempt"),
		NoMQTT:     flag.Bool("nomqtt", false, "do not publish to MQTT"),
		Realtime:   flag.Bool("realtime", false, "raise the reader thread priority during a read"),
		ConfigPath: flag.String("config", "", "optional YAML config file"),
	}
	flag.Parse()

	if *args.Verbose {
		logger.SetLevel(logger.DebugLevel)
	}
	if *args.Test {
		logger.Info("TEST MODE")
	}

	cfg, err := config.Load(*args.ConfigPath)
	if err != nil {
		logger.Fatalf("Bad configuration [%v]", err)
	}

	logger.Infof("%v: Initialize sensor...", time.Now().Format(time.RFC822))
	if _, err := host.Init(); err != nil {
		logger.Fatalf("Failed to init host [%v]", err)
	}
	pin := gpioreg.ByName(cfg.Pin)
	if pin == nil {
		logger.Fatalf("No such pin [%v]", cfg.Pin)
	}
	opts := cfg.SensorOpts()
	if *args.Realtime {
		opts.Realtime = true
	}
	dev, err := dht.New(pin, opts)
	if err != nil {
		logger.Fatalf("Failed to initialise sensor!! [%v]", err)
	}
	logger.Infof("Sensor [%v] ready", dev)

	w := newStation(cfg, args, dev)
	if p := gpioreg.ByName(cfg.LedPin); p != nil {
		w.led = led.NewLED("read", p)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DB.DSN != "" {
		w.store, err = store.Open(ctx, cfg.DB.DSN)
		if err != nil {
			logger.Errorf("Statistics disabled [%v]", err)
		}
	}
	if !*args.NoMQTT && cfg.MQTT.Broker != "" {
		p, err := publish.NewPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		if err != nil {
			logger.Errorf("MQTT disabled [%v]", err)
		} else {
			w.pub = p
		}
	}
	w.hub = stream.NewHub()

	mux := http.NewServeMux()
	mux.HandleFunc("/", w.handler)
	mux.HandleFunc("/stats", w.statsHandler)
	mux.Handle("/ws", w.hub)
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	go func() {
		logger.Infof("Starting webservice on [%v]", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err)
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info("Exiting...")
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	w.Run(ctx)
}

func newStation(cfg config.Config, args env.Args, dev reader) *station {
	return &station{
		cfg:         cfg,
		args:        args,
		dev:         dev,
		temperature: buffer.NewBuffer(env.HistoryLength),
		humidity:    buffer.NewBuffer(env.HistoryLength),
	}
}

// Run starts the monitor and reporter and blocks until ctx is done. The
// collaborators are only closed once the monitor has finished its last read.
func (w *station) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.StartMonitor(ctx)
	}()
	if w.wowEnabled() {
		go w.Reporting(ctx)
	}

	<-ctx.Done()
	<-done
	w.close()
}

func (w *station) wowEnabled() bool {
	return !isSet(w.args.Test) && !isSet(w.args.NoWow)
}

func isSet(b *bool) bool {
	return b != nil && *b
}

func (w *station) close() {
	if err := w.dev.Halt(); err != nil {
		logger.Errorf("Halt sensor [%v]", err)
	}
	if w.pub != nil {
		w.pub.Close()
	}
	if w.hub != nil {
		w.hub.Close()
	}
	if err := w.store.Close(); err != nil {
		logger.Errorf("Close store [%v]", err)
	}
	if w.led != nil {
		w.led.Off()
	}
}

func (w *station) snapshot() webdata {
	w.lock.Lock()
	r := w.last
	w.lock.Unlock()

	wd := webdata{
		TimeNow:  time.Now().Format(time.RFC822),
		Status:   r.Status.String(),
		Attempts: r.Attempts,
		Statuses: r.Statuses,
	}
	if r.Attempts == 0 {
		wd.Status = "waiting"
	}
	if !r.Time.IsZero() {
		wd.TimeNow = r.Time.Format(time.RFC822)
	}
	if r.Valid {
		t, h := r.Temperature.Float64(), r.Humidity.Float64()
		dp, at := dewPoint(t, h), apparentTemperature(t, h)
		wd.Temperature, wd.Humidity = &t, &h
		wd.DewPoint, wd.Apparent = &dp, &at
	}
	if avg, min, max, ok := w.temperature.GetAverageMinMax(); ok {
		wd.TempAvg, wd.TempMin, wd.TempMax = float64(avg), float64(min), float64(max)
	}
	if avg, min, max, ok := w.humidity.GetAverageMinMax(); ok {
		wd.HumidityAvg, wd.HumidityMin, wd.HumidityMax = float64(avg), float64(min), float64(max)
	}
	return wd
}

func (w *station) handler(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	js, err := json.Marshal(w.snapshot())
	if err != nil {
		logger.Errorf("JSON error [%v]", err)
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}

	logger.Debugf("Web read: [%v]", string(js))
	_, _ = rw.Write(js) // not much we can do if this fails
}

type stats struct {
	Since    string         `json:"since"`
	Summary  store.Summary  `json:"summary"`
	Statuses map[string]int `json:"statuses"`
}

// statsHandler reports the last day from the statistics log.
func (w *station) statsHandler(rw http.ResponseWriter, r *http.Request) {
	if w.store == nil {
		http.Error(rw, "statistics disabled", http.StatusNotFound)
		return
	}
	since := time.Now().Add(-24 * time.Hour)
	sum, err := w.store.Summary(r.Context(), since)
	if err != nil && !errors.Is(err, store.ErrNoReadings) {
		logger.Errorf("Stats error [%v]", err)
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	counts, err := w.store.AttemptCounts(r.Context(), since)
	if err != nil {
		logger.Errorf("Stats error [%v]", err)
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(stats{Since: since.Format(time.RFC3339), Summary: sum, Statuses: counts})
}
