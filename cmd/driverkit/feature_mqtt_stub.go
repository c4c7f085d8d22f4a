//go:build no_mqtt

package main

import (
	"log/slog"

	"homey-driverkit/internal/pipeline"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *pipeline.EventBus, _ *Config, _ *slog.Logger) *mqttStopper {
	return &mqttStopper{}
}
