// Package publish sends readings to an MQTT broker as retained JSON.
package publish

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gr-butler/dht/dht"
	logger "github.com/sirupsen/logrus"
)

const (
	qos            = 1
	publishTimeout = 10 * time.Second
	disconnectWait = 250
)

type Publisher struct {
	client mqtt.Client
	topic  string
}

func NewPublisher(broker, clientID, topic string) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(time.Minute)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warnf("MQTT connection lost [%v]", err)
	})

	client := mqtt.NewClient(opts)
	// with connect retry the token only completes once connected
	if token := client.Connect(); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	logger.Infof("Publishing readings to [%v] topic [%v]", broker, topic)
	return &Publisher{client: client, topic: topic}, nil
}

// Topics returns the full reading topic and the per-status topic.
func Topics(base string, r dht.Reading) (string, string) {
	return base + "/reading", base + "/status/" + r.Status.String()
}

// Publish sends the reading, retained so late subscribers get the last one.
// The status topic carries only the attempt count.
func (p *Publisher) Publish(r dht.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("mqtt payload: %w", err)
	}
	readingTopic, statusTopic := Topics(p.topic, r)
	if err := p.send(readingTopic, true, payload); err != nil {
		return err
	}
	return p.send(statusTopic, false, []byte(fmt.Sprint(r.Attempts)))
}

func (p *Publisher) send(topic string, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(disconnectWait)
}
