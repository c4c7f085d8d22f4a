//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"homey-driverkit/internal/enrich"
	"homey-driverkit/internal/pipeline"
	"homey-driverkit/internal/report"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	ClientID    string
	Discovery   bool // publish Home Assistant discovery for the run summary
}

// Bridge publishes pipeline events to MQTT.
type Bridge struct {
	client pahomqtt.Client
	cfg    Config
	logger *slog.Logger
	unsub  func()
}

// message is one MQTT publication.
type message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(cfg Config, logger *slog.Logger) (*Bridge, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "driverkit"
	}
	b := &Bridge{
		cfg:    cfg,
		logger: logger.With("component", "mqtt"),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(stateTopic(cfg.TopicPrefix), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected", "broker", cfg.Broker)
			b.publishBridgeState("online")
			if cfg.Discovery {
				b.publishAll(buildDiscovery(cfg.TopicPrefix))
			}
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

// Start subscribes to the runner's events.
func (b *Bridge) Start(events *pipeline.EventBus) {
	b.unsub = events.OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.cfg.TopicPrefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleEvent(event pipeline.Event) {
	b.publishAll(buildMessages(b.cfg.TopicPrefix, event))
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(message{Topic: stateTopic(b.cfg.TopicPrefix), Payload: []byte(state), Retained: true})
}

func (b *Bridge) publishAll(msgs []message) {
	for _, m := range msgs {
		b.publish(m)
	}
}

func (b *Bridge) publish(m message) {
	token := b.client.Publish(m.Topic, 1, m.Retained, m.Payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", m.Topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", m.Topic, "err", err)
		}
	}()
}

func stateTopic(prefix string) string { return prefix + "/bridge/state" }

func reportTopic(prefix string) string { return prefix + "/report" }

// driverTopic returns the per-driver topic. Wildcards and separators in the
// driver name are replaced so it stays a single topic level.
func driverTopic(prefix, driver string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#':
			return '_'
		}
		return r
	}, driver)
	return prefix + "/drivers/" + name
}

// driverPayload is published for record events.
type driverPayload struct {
	Event string `json:"event"`
	report.RecordResult
}

// reportPayload is the retained run summary. Per-record results are
// published on the driver topics instead.
type reportPayload struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Duration    string           `json:"duration"`
	DryRun      bool             `json:"dry_run"`
	Summary     enrich.Summary   `json:"summary"`
	Counts      report.Counts    `json:"counts"`
	Delta       *report.Delta    `json:"delta,omitempty"`
	Failures    []report.Failure `json:"failures"`
}

// buildMessages maps a pipeline event to its publications.
func buildMessages(prefix string, event pipeline.Event) []message {
	switch event.Type {
	case pipeline.EventRunStarted:
		return []message{{Topic: prefix + "/run", Payload: mustJSON(event.Data)}}

	case pipeline.EventRecordEnriched, pipeline.EventRecordUnchanged, pipeline.EventRecordValid,
		pipeline.EventRecordFailed, pipeline.EventRecordSynthesized:
		res, ok := event.Data.(report.RecordResult)
		if !ok {
			return nil
		}
		return []message{{
			Topic:    driverTopic(prefix, res.Driver),
			Payload:  mustJSON(driverPayload{Event: event.Type, RecordResult: res}),
			Retained: true,
		}}

	case pipeline.EventRunCompleted:
		rep, ok := event.Data.(*report.Report)
		if !ok {
			return nil
		}
		return []message{{
			Topic: reportTopic(prefix),
			Payload: mustJSON(reportPayload{
				RunID:       rep.RunID,
				GeneratedAt: rep.GeneratedAt,
				Duration:    rep.Duration,
				DryRun:      rep.DryRun,
				Summary:     rep.Summary,
				Counts:      rep.Counts,
				Delta:       rep.Delta,
				Failures:    rep.Failures,
			}),
			Retained: true,
		}}
	}
	return nil
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
