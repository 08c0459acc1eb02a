package env

import "time"

const (
	GPIO20 = "GPIO20" // read LED
	GPIO21 = "GPIO21" // DHT data, 10k pull up to 3V3

	DHTDataPin = GPIO21
	ReadLed    = GPIO20

	DHTModel = 22

	// The sensor reports the conditions at the previous transaction, so
	// readings are taken well apart and never faster than the cooldown.
	ReadInterval = time.Minute

	// 60 readings at one a minute is an hour of history
	HistoryLength = 60

	ReportFreqMin = 15

	LEDFlashDuration = time.Millisecond * 100

	HTTPAddr = ":80"

	MQTTBroker   = "tcp://localhost:1883"
	MQTTClientID = "dht-station"
	MQTTTopic    = "home/dht"
)
