package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/gr-butler/dht/env"

	logger "github.com/sirupsen/logrus"
)

/*
https://wow.metoffice.gov.uk/support/dataformats

Uploads are a GET with siteid, siteAuthenticationKey, dateutc (UTC, "YYYY-mm-DD HH:mm:ss")
and softwaretype plus at least one observation. We only have:

tempf 		Outdoor Temperature		Fahrenheit
humidity 	Outdoor Humidity		0-100 %
dewptf 		Outdoor Dewpoint		Fahrenheit
*/

var wowURL = "http://wow.metoffice.gov.uk/automaticreading?"

type weatherData struct {
	SiteId       string  `url:"siteid,omitempty"`
	AuthKey      string  `url:"siteAuthenticationKey,omitempty"`
	DateString   string  `url:"dateutc,omitempty"`
	SoftwareType string  `url:"softwaretype,omitempty"`
	TempC        float64 `url:"-"`
	TempF        float64 `url:"tempf"`
	Humidity     float64 `url:"humidity,omitempty"`
	DewPointF    float64 `url:"dewptf"`
}

// Reporting sends the recent averages to WOW every ReportFreqMin minutes.
func (w *station) Reporting(ctx context.Context) {
	if w.cfg.WOW.SiteID == "" || w.cfg.WOW.Pin == "" {
		logger.Error("SiteId and or pin not set! WOWSITEID and WOWPIN must be set.")
		return
	}
	client := &http.Client{Timeout: time.Second * 30}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			if t.Minute()%env.ReportFreqMin != 0 {
				continue
			}
			data, ok := w.prepData(t)
			if !ok {
				logger.Warn("No readings to report")
				continue
			}
			logger.Info("Sending data to met office")
			if err := sendReport(ctx, client, data); err != nil {
				logger.Errorf("Failed to send report [%v]", err)
			}
		}
	}
}

// prepData averages the readings of the last report period. It is false
// until there has been a good reading.
func (w *station) prepData(now time.Time) (*weatherData, bool) {
	n := w.readingsPerReport()
	tempC, tok := w.temperature.AverageLast(n)
	humidity, hok := w.humidity.AverageLast(n)
	if !tok || !hok {
		return nil, false
	}

	wd := weatherData{
		SiteId:  w.cfg.WOW.SiteID,
		AuthKey: w.cfg.WOW.Pin,
		// go magic date is Mon Jan 2 15:04:05 MST 2006
		DateString:   now.UTC().Format("2006-01-02 15:04:05"),
		SoftwareType: version,
		TempC:        float64(tempC),
		Humidity:     float64(humidity),
	}
	wd.TempF = ctof(wd.TempC)
	wd.DewPointF = ctof(dewPoint(wd.TempC, wd.Humidity))
	return &wd, true
}

// readingsPerReport is how many readings the monitor takes in one report
// period.
func (w *station) readingsPerReport() int {
	if w.cfg.Interval <= 0 {
		return env.ReportFreqMin
	}
	n := int(time.Duration(env.ReportFreqMin) * time.Minute / w.cfg.Interval)
	if n < 1 {
		n = 1
	}
	return n
}

func sendReport(ctx context.Context, client *http.Client, data *weatherData) error {
	vals, err := query.Values(data)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	logger.Infof("Data: [%v]", vals)

	// Metoffice accepts a GET
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wowURL+vals.Encode(), nil)
	if err != nil {
		return fmt.Errorf("report request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("report request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("report rejected: HTTP [%v]", resp.Status)
	}
	return nil
}

// dewPoint uses the simple approximation Td = T - ((100 - RH)/5), good
// above 50% RH.
func dewPoint(tempC, rh float64) float64 {
	return tempC - ((100 - rh) / 5.0)
}

// apparentTemperature is the Steadman still-air form AT = T + 0.33e - 4,
// e being the water vapour pressure in hPa.
func apparentTemperature(tempC, rh float64) float64 {
	e := rh / 100 * 6.105 * math.Exp(17.27*tempC/(237.7+tempC))
	return tempC + 0.33*e - 4
}

func ctof(c float64) float64 {
	//(0°C × 9/5) + 32 = 32°F
	return ((c * 9 / 5) + 32)
}
