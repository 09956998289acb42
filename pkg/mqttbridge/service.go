// Package mqttbridge republishes stored readings on MQTT so external
// consumers (home automation, secondary loggers) can follow along without
// touching the database. Optional; the collector runs fine without a broker.
package mqttbridge

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/dvhome/house_energy_monitor/pkg/config"
	"github.com/dvhome/house_energy_monitor/pkg/meterdb"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

type Bridge struct {
	client mqtt.Client
	log    zerolog.Logger
}

// Connect dials the broker. A broker that is down is an error the caller
// logs and lives without; readings still land in the store.
func Connect(cfg config.MQTTConfig, log zerolog.Logger) (*Bridge, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID("house_energy_collector").
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s:%d timed out", cfg.Host, cfg.Port)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &Bridge{
		client: client,
		log:    log.With().Str("component", "mqttbridge").Logger(),
	}, nil
}

// Publish sends the reading as JSON on energy/<device_id>. Failures are
// warnings; publication must never block or fail a poll cycle.
func (b *Bridge) Publish(r *meterdb.Reading) {
	payload, err := json.Marshal(r)
	if err != nil {
		b.log.Warn().Str("device_id", r.DeviceID).Err(err).Msg("Could not marshal reading")
		return
	}

	topic := "energy/" + r.DeviceID
	token := b.client.Publish(topic, 0, false, payload)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		b.log.Warn().
			Str("device_id", r.DeviceID).
			Str("topic", topic).
			Err(token.Error()).
			Msg("MQTT publish failed")
	}
}

func (b *Bridge) Close() {
	b.client.Disconnect(250)
}
