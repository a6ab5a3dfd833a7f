package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// HADiscoverySettings holds configuration for the Home Assistant MQTT
// auto-discovery channel, reusing the already-wired paho MQTT broker
// client rather than inventing a second transport for the same
// protocol (§4.9's generic-webhook/mqtt channels share one client
// library across the fleet).
type HADiscoverySettings struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Prefix   string `json:"prefix,omitempty"` // HA discovery prefix, default "homeassistant"
}

// HADiscovery publishes Home Assistant MQTT auto-discovery payloads for
// fired/resolved alerts: a host_offline alert toggles that host's
// connectivity binary_sensor, anything else updates a generic
// last-alert sensor. Connects fresh per Send and disconnects
// afterwards, matching the MQTT notifier's connect-send-close pattern
// rather than holding a long-lived broker connection across alerts.
type HADiscovery struct {
	cfg       HADiscoverySettings
	prefix    string // HA discovery prefix, default "homeassistant"
	baseTopic string // state topic prefix, default "infra_mapper"
	broker    mqtt.Client
}

// NewHADiscovery constructs an HA discovery notifier. The broker
// connection is established per Send, not here.
func NewHADiscovery(cfg HADiscoverySettings) *HADiscovery {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "homeassistant"
	}
	return &HADiscovery{cfg: cfg, prefix: prefix, baseTopic: "infra_mapper"}
}

func (h *HADiscovery) Name() string { return "ha_discovery" }

// Send connects to the configured broker, publishes the discovery
// config + state for this event, and disconnects.
func (h *HADiscovery) Send(_ context.Context, event Event) error {
	clientID := h.cfg.ClientID
	if clientID == "" {
		clientID = "infra-mapper"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(h.cfg.Broker).
		SetClientID(clientID + "-ha").
		SetConnectTimeout(10 * time.Second).
		SetCleanSession(true)
	if h.cfg.Username != "" {
		opts.SetUsername(h.cfg.Username)
		opts.SetPassword(h.cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return fmt.Errorf("ha discovery mqtt connect: %w", token.Error())
	}
	h.broker = client
	defer func() {
		if h.broker.IsConnected() {
			h.broker.Disconnect(250)
		}
	}()

	if event.RuleType == "host_offline" && len(event.HostRefs) == 1 {
		return h.PublishHostOnline(event.HostRefs[0], event.Type == EventAlertResolved)
	}
	return h.publishLastAlert(event)
}

// publishLastAlert publishes a generic sensor carrying the most recent
// alert's title, for rule types with no dedicated entity (§4.8 covers
// container_stopped/container_unhealthy too, which have no single
// stable HA entity per alert the way a host does).
func (h *HADiscovery) publishLastAlert(event Event) error {
	configTopic := fmt.Sprintf("%s/sensor/infra_mapper_last_alert/config", h.prefix)
	stateTopic := fmt.Sprintf("%s/last_alert", h.baseTopic)

	config := map[string]interface{}{
		"name":      "Infra-Mapper Last Alert",
		"unique_id": "infra_mapper_last_alert",
		"state_topic": stateTopic,
		"icon":        "mdi:alert-circle",
		"device": map[string]interface{}{
			"identifiers":  []string{"infra_mapper"},
			"name":         "Infra-Mapper",
			"manufacturer": "Infra-Mapper",
			"model":        "Fleet Collector",
		},
	}
	configJSON, err := json.Marshal(config)
	if err != nil {
		return err
	}
	if token := h.broker.Publish(configTopic, 1, true, configJSON); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return token.Error()
	}
	if token := h.broker.Publish(stateTopic, 1, true, []byte(event.Title)); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// PublishHostOnline publishes a binary_sensor discovery config + state
// for one host's online status, so an agent going offline shows up on
// an HA dashboard without configuring a separate webhook integration.
func (h *HADiscovery) PublishHostOnline(hostID string, online bool) error {
	safeID := sanitizeID(hostID)

	configTopic := fmt.Sprintf("%s/binary_sensor/infra_mapper_%s/config", h.prefix, safeID)
	stateTopic := fmt.Sprintf("%s/hosts/%s/online", h.baseTopic, safeID)

	config := map[string]interface{}{
		"name":         fmt.Sprintf("Infra-Mapper %s Online", hostID),
		"unique_id":    fmt.Sprintf("infra_mapper_%s_online", safeID),
		"state_topic":  stateTopic,
		"payload_on":   "ON",
		"payload_off":  "OFF",
		"device_class": "connectivity",
		"device": map[string]interface{}{
			"identifiers":  []string{"infra_mapper"},
			"name":         "Infra-Mapper",
			"manufacturer": "Infra-Mapper",
			"model":        "Fleet Collector",
		},
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		return err
	}

	// Publish config retained so HA picks it up on restart.
	if token := h.broker.Publish(configTopic, 1, true, configJSON); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return token.Error()
	}

	state := "OFF"
	if online {
		state = "ON"
	}
	if token := h.broker.Publish(stateTopic, 1, true, []byte(state)); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return token.Error()
	}

	return nil
}

func sanitizeID(s string) string {
	var b []byte
	for _, c := range []byte(s) {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b = append(b, c)
		} else {
			b = append(b, '_')
		}
	}
	return string(b)
}
