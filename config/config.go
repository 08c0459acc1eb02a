// Package config loads the station configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gr-butler/dht/dht"
	"github.com/gr-butler/dht/env"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Pin      string        `yaml:"pin"`
	LedPin   string        `yaml:"led_pin"`
	Model    int           `yaml:"model"`
	Interval time.Duration `yaml:"interval"`
	HTTPAddr string        `yaml:"http_addr"`

	Sensor Sensor `yaml:"sensor"`
	MQTT   MQTT   `yaml:"mqtt"`
	DB     DB     `yaml:"db"`
	WOW    WOW    `yaml:"wow"`
}

// Sensor tunes the reader; zero values keep the driver defaults.
type Sensor struct {
	StartHold          time.Duration `yaml:"start_hold"`
	MaxWait            time.Duration `yaml:"max_wait"`
	Cooldown           time.Duration `yaml:"cooldown"`
	MaxAttempts        int           `yaml:"max_attempts"`
	MaxTemperature     float64       `yaml:"max_temperature"`
	MaxHumidity        float64       `yaml:"max_humidity"`
	MaxTemperatureStep float64       `yaml:"max_temperature_step"`
	MaxHumidityStep    float64       `yaml:"max_humidity_step"`
	StrictChecksum     bool          `yaml:"strict_checksum"`
	Realtime           bool          `yaml:"realtime"`
	AlignRelease       bool          `yaml:"align_release"`
}

type MQTT struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type DB struct {
	// DSN is a postgres:// URL or a sqlite file path; empty disables logging
	DSN string `yaml:"dsn"`
}

type WOW struct {
	SiteID string `yaml:"site_id"`
	Pin    string `yaml:"pin"`
}

func Default() Config {
	return Config{
		Pin:      env.DHTDataPin,
		LedPin:   env.ReadLed,
		Model:    env.DHTModel,
		Interval: env.ReadInterval,
		HTTPAddr: env.HTTPAddr,
		MQTT: MQTT{
			Broker:   env.MQTTBroker,
			ClientID: env.MQTTClientID,
			Topic:    env.MQTTTopic,
		},
	}
}

// Load reads path over the defaults, then applies the environment. An empty
// path skips the file.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("DHT_PIN"); ok {
		c.Pin = v
	}
	if v, ok := os.LookupEnv("DHT_MODEL"); ok {
		m, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DHT_MODEL [%v]: %w", v, err)
		}
		c.Model = m
	}
	if v, ok := os.LookupEnv("MQTT_BROKER"); ok {
		c.MQTT.Broker = v
	}
	if v, ok := os.LookupEnv("DB_DSN"); ok {
		c.DB.DSN = v
	}
	if v, ok := os.LookupEnv("WOWSITEID"); ok {
		c.WOW.SiteID = v
	}
	if v, ok := os.LookupEnv("WOWPIN"); ok {
		c.WOW.Pin = v
	}
	return nil
}

func (c Config) Validate() error {
	if c.Pin == "" {
		return errors.New("config: no data pin")
	}
	if c.Model != int(dht.DHT11) && c.Model != int(dht.DHT22) {
		return fmt.Errorf("config: model [%d] must be 11 or 22", c.Model)
	}
	cooldown := c.Sensor.Cooldown
	if cooldown == 0 {
		cooldown = dht.DefaultOpts.Cooldown
	}
	if c.Interval < cooldown {
		return fmt.Errorf("config: interval [%v] shorter than cooldown [%v]", c.Interval, cooldown)
	}
	return nil
}

// SensorOpts builds the driver options.
func (c Config) SensorOpts() *dht.Opts {
	return &dht.Opts{
		Model:              dht.Model(c.Model),
		StartHold:          c.Sensor.StartHold,
		MaxWait:            c.Sensor.MaxWait,
		Cooldown:           c.Sensor.Cooldown,
		MaxAttempts:        c.Sensor.MaxAttempts,
		MaxTemperature:     c.Sensor.MaxTemperature,
		MaxHumidity:        c.Sensor.MaxHumidity,
		MaxTemperatureStep: c.Sensor.MaxTemperatureStep,
		MaxHumidityStep:    c.Sensor.MaxHumidityStep,
		StrictChecksum:     c.Sensor.StrictChecksum,
		Realtime:           c.Sensor.Realtime,
		AlignRelease:       c.Sensor.AlignRelease,
	}
}
