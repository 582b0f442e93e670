// Package telemetry publishes session lifecycle events to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/swctools/swctools/internal/config"
	"github.com/swctools/swctools/internal/events"
	"github.com/swctools/swctools/internal/util"
)

// Topic suffixes appended to the configured prefix.
const (
	TopicSession   = "session"
	TopicSnapshots = "snapshots"
	TopicHeartbeat = "heartbeat"
	TopicAdmin     = "admin"
)

// forwarded lists the bus events published to the broker.
var forwarded = []events.EventType{
	events.EventSessionInitialized,
	events.EventSessionReauth,
	events.EventDriftCorrected,
	events.EventSessionDead,
	events.EventProtocolFailure,
	events.EventSnapshotCollected,
	events.EventHeartbeat,
}

// MQTTHandler manages the MQTT connection and publishes bus events.
type MQTTHandler struct {
	cfg      config.MQTTConfig
	eventBus *events.EventBus
	client   mqtt.Client

	// publishFn delivers an encoded message; replaced in tests.
	publishFn func(topic string, data []byte)

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a new MQTT telemetry handler.
func NewMQTTHandler(cfg config.MQTTConfig, eventBus *events.EventBus, version string) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	hostInfo := util.GetHostInfo()
	handler := &MQTTHandler{
		cfg:      cfg,
		eventBus: eventBus,
		metadata: map[string]interface{}{
			"hostname":    hostInfo.Hostname,
			"os":          hostInfo.OS,
			"arch":        hostInfo.Architecture,
			"cpu_cores":   hostInfo.CPUCores,
			"memory_mb":   hostInfo.TotalMemory,
			"app_version": version,
		},
	}

	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("swctools-%s", hostInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if cfg.UseTLS {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	handler.client = mqtt.NewClient(opts)
	handler.publishFn = handler.clientPublish

	return handler, nil
}

func buildTLSConfig(cfg config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	// mTLS
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Start connects to the broker, forwards events until ctx is cancelled and
// then disconnects.
func (h *MQTTHandler) Start(ctx context.Context) error {
	log.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()
	defer h.unsubscribeEvents()

	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")

	return nil
}

func (h *MQTTHandler) subscribeEvents() {
	for _, et := range forwarded {
		h.eventBus.Subscribe(et, "mqtt."+string(et), h.onEvent)
	}
}

func (h *MQTTHandler) unsubscribeEvents() {
	for _, et := range forwarded {
		h.eventBus.Unsubscribe(et, "mqtt."+string(et))
	}
}

// topicFor maps an event to its topic.
func (h *MQTTHandler) topicFor(et events.EventType) string {
	switch et {
	case events.EventSnapshotCollected:
		return h.topic(TopicSnapshots)
	case events.EventHeartbeat:
		return h.topic(TopicHeartbeat)
	case events.EventShutdown:
		return h.topic(TopicAdmin)
	default:
		return h.topic(TopicSession) + "/" + string(et)
	}
}

func (h *MQTTHandler) topic(suffix string) string {
	if h.cfg.TopicPrefix == "" {
		return suffix
	}
	return h.cfg.TopicPrefix + "/" + suffix
}

func (h *MQTTHandler) onEvent(ctx context.Context, event events.Event) error {
	h.publish(h.topicFor(event.Type), event)
	return nil
}

// publish encodes payload together with the host metadata.
func (h *MQTTHandler) publish(topic string, event events.Event) {
	data, err := json.Marshal(h.buildMessage(event))
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}
	h.publishFn(topic, data)
}

func (h *MQTTHandler) clientPublish(topic string, data []byte) {
	if !h.client.IsConnected() {
		return
	}

	token := h.client.Publish(topic, 1, false, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event.
func (h *MQTTHandler) buildMessage(event events.Event) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+4)
	for k, v := range h.metadata {
		msg[k] = v
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	msg["event"] = string(event.Type)
	msg["source"] = event.Source
	msg["payload"] = event.Payload
	msg["timestamp"] = ts.UTC().Format(time.RFC3339)

	return msg
}

// PublishShutdown sends a shutdown message to the broker.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(h.topicFor(events.EventShutdown), events.Event{
		Type:   events.EventShutdown,
		Source: "telemetry",
	})
}
