// Package notify pushes data-update signals to a Home Assistant instance.
// Every call is best-effort: failures are logged and counted, never
// propagated, and never roll back the sync that triggered them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wattsync/wattsync/internal/config"
	"github.com/wattsync/wattsync/internal/metrics"
	"github.com/wattsync/wattsync/pkg/models"
)

// DataUpdatedEvent is the event type fired after a sync lands fresh data
const DataUpdatedEvent = "wattsync_data_updated"

const defaultTimeout = 10 * time.Second

// Notifier sends update notifications to Home Assistant over its HTTP API
// and optionally publishes usage state over MQTT.
type Notifier struct {
	haURL      string
	haToken    string
	webhookID  string
	entities   []string
	httpClient *http.Client
	logger     *slog.Logger

	mqttClient  mqtt.Client
	topicPrefix string
}

// Option configures the notifier
type Option func(*Notifier)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) {
		n.httpClient = client
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// WithMQTTClient sets a pre-built MQTT client (for testing)
func WithMQTTClient(client mqtt.Client) Option {
	return func(n *Notifier) {
		n.mqttClient = client
	}
}

// New creates a notifier from configuration. MQTT is connected only when
// enabled; a connection failure disables MQTT rather than failing startup.
func New(haCfg config.HomeAssistantConfig, mqttCfg config.MQTTConfig, opts ...Option) *Notifier {
	n := &Notifier{
		haURL:       strings.TrimRight(haCfg.URL, "/"),
		haToken:     haCfg.Token,
		webhookID:   haCfg.WebhookID,
		entities:    splitEntities(haCfg.EntitiesToRefresh),
		httpClient:  &http.Client{Timeout: defaultTimeout},
		logger:      slog.Default(),
		topicPrefix: mqttCfg.TopicPrefix,
	}

	for _, opt := range opts {
		opt(n)
	}

	if mqttCfg.Enabled && n.mqttClient == nil {
		client, err := connectMQTT(mqttCfg)
		if err != nil {
			n.logger.Warn("MQTT connect failed, publishing disabled",
				slog.String("broker", mqttCfg.Broker),
				slog.String("error", err.Error()))
		} else {
			n.mqttClient = client
		}
	}

	return n
}

func connectMQTT(cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID("wattsync")
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(defaultTimeout)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}
	return client, nil
}

func splitEntities(raw string) []string {
	var entities []string
	for _, e := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(e); trimmed != "" {
			entities = append(entities, trimmed)
		}
	}
	return entities
}

// IsConfigured reports whether the Home Assistant HTTP integration is usable
func (n *Notifier) IsConfigured() bool {
	return n.haURL != "" && n.haToken != ""
}

// NotifyDataUpdated tells Home Assistant which contracts received fresh
// data. It calls the webhook if configured, refreshes configured entities,
// and fires the data-updated event for automations.
func (n *Notifier) NotifyDataUpdated(ctx context.Context, contractIDs []string) {
	if !n.IsConfigured() {
		n.logger.Debug("Home Assistant integration not configured, skipping notification")
		return
	}

	if n.webhookID != "" {
		n.callWebhook(ctx, contractIDs)
	}

	for _, entityID := range n.entities {
		n.refreshEntity(ctx, entityID)
	}

	n.FireEvent(ctx, DataUpdatedEvent, map[string]interface{}{
		"contracts": contractIDs,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (n *Notifier) callWebhook(ctx context.Context, contractIDs []string) {
	url := fmt.Sprintf("%s/api/webhook/%s", n.haURL, n.webhookID)
	payload := map[string]interface{}{
		"event":        DataUpdatedEvent,
		"contract_ids": contractIDs,
	}

	if err := n.post(ctx, url, payload, false); err != nil {
		metrics.RecordNotification("webhook", "error")
		n.logger.Warn("failed to call Home Assistant webhook", slog.String("error", err.Error()))
		return
	}

	metrics.RecordNotification("webhook", "ok")
	n.logger.Info("notified Home Assistant webhook", slog.Int("contracts", len(contractIDs)))
}

func (n *Notifier) refreshEntity(ctx context.Context, entityID string) {
	url := n.haURL + "/api/services/homeassistant/update_entity"
	payload := map[string]interface{}{"entity_id": entityID}

	if err := n.post(ctx, url, payload, true); err != nil {
		metrics.RecordNotification("entity_refresh", "error")
		n.logger.Warn("failed to refresh Home Assistant entity",
			slog.String("entity_id", entityID),
			slog.String("error", err.Error()))
		return
	}

	metrics.RecordNotification("entity_refresh", "ok")
	n.logger.Debug("refreshed Home Assistant entity", slog.String("entity_id", entityID))
}

// FireEvent fires a custom event in Home Assistant
func (n *Notifier) FireEvent(ctx context.Context, eventType string, data map[string]interface{}) {
	if !n.IsConfigured() {
		return
	}

	url := fmt.Sprintf("%s/api/events/%s", n.haURL, eventType)
	if data == nil {
		data = map[string]interface{}{}
	}

	if err := n.post(ctx, url, data, true); err != nil {
		metrics.RecordNotification("event", "error")
		n.logger.Warn("failed to fire Home Assistant event",
			slog.String("event", eventType),
			slog.String("error", err.Error()))
		return
	}

	metrics.RecordNotification("event", "ok")
	n.logger.Debug("fired Home Assistant event", slog.String("event", eventType))
}

// PublishLatest publishes a contract's latest daily total over MQTT.
// A no-op when MQTT is not connected.
func (n *Notifier) PublishLatest(contractID string, rec models.UsageRecord) {
	if n.mqttClient == nil {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"date":         rec.Timestamp.Format(models.DateLayout),
		"value":        rec.Value,
		"unit":         rec.Unit,
		"dollar_value": rec.DollarValue,
	})
	if err != nil {
		n.logger.Warn("failed to encode MQTT payload", slog.String("error", err.Error()))
		return
	}

	topic := fmt.Sprintf("%s/%s/state", n.topicPrefix, contractID)
	token := n.mqttClient.Publish(topic, 0, true, payload)
	if token.Wait() && token.Error() != nil {
		metrics.RecordNotification("mqtt", "error")
		n.logger.Warn("failed to publish MQTT state",
			slog.String("topic", topic),
			slog.String("error", token.Error().Error()))
		return
	}

	metrics.RecordNotification("mqtt", "ok")
}

func (n *Notifier) post(ctx context.Context, url string, payload interface{}, authed bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+n.haToken)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
