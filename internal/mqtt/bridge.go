// Package mqtt bridges broker-published triggers into agent turns. A
// vehicle or home integration publishes a small JSON payload when
// something noteworthy happens (destination set, call ended), and the
// bridge wakes the agent with the matching trigger label.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/jarvix-ai/jarvix/internal/config"
	"github.com/jarvix-ai/jarvix/internal/events"
)

// Known trigger labels published by integrations.
const (
	TriggerDestinationSet  = "destination_set"
	TriggerCallEnded       = "call_ended"
	TriggerFSDOn           = "fsd_on"
	TriggerConversationGap = "conversation_gap"
	TriggerPassengerExit   = "passenger_exit"
)

// defaultCooldown suppresses repeat fires of the same trigger.
const defaultCooldown = 5 * time.Minute

// TurnRunner starts a triggered agent turn. The concrete adapter is
// wired in main.go to avoid coupling this package to the turn loop.
type TurnRunner interface {
	RunTriggered(ctx context.Context, trigger, userID, message string)
}

// triggerPayload is the JSON body published to the trigger topic.
type triggerPayload struct {
	Trigger string `json:"trigger"`
	UserID  string `json:"user_id"`
	Message string `json:"message,omitempty"`
}

// Bridge subscribes to the trigger topic and fires agent turns with a
// per-trigger cooldown.
type Bridge struct {
	cfg      config.MQTTConfig
	runner   TurnRunner
	bus      *events.Bus
	logger   *slog.Logger
	cooldown time.Duration
	cm       *autopaho.ConnectionManager

	mu        sync.Mutex
	lastFired map[string]time.Time
}

// NewBridge creates a Bridge but does not connect. Call [Bridge.Start]
// to begin the connection.
func NewBridge(cfg config.MQTTConfig, runner TurnRunner, bus *events.Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Topic == "" {
		cfg.Topic = "jarvix/trigger"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "jarvix"
	}
	return &Bridge{
		cfg:       cfg,
		runner:    runner,
		bus:       bus,
		logger:    logger,
		cooldown:  defaultCooldown,
		lastFired: make(map[string]time.Time),
	}
}

// Start connects to the broker and subscribes to the trigger topic.
// It returns once the connection manager is running; autopaho handles
// reconnects and resubscription in the background.
func (b *Bridge) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(b.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: b.cfg.Username,
		ConnectPassword: []byte(b.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.logger.Info("mqtt connected to broker", "broker", b.cfg.BrokerURL)
			if _, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: b.cfg.Topic, QoS: 1},
				},
			}); err != nil {
				b.logger.Warn("mqtt subscribe failed", "topic", b.cfg.Topic, "error", err)
			}
		},
		OnConnectError: func(err error) {
			b.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: b.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					b.handleMessage(ctx, pr.Packet.Payload)
					return true, nil
				},
			},
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	b.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		b.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Stop disconnects from the broker.
func (b *Bridge) Stop(ctx context.Context) error {
	if b.cm == nil {
		return nil
	}
	return b.cm.Disconnect(ctx)
}

func (b *Bridge) handleMessage(ctx context.Context, payload []byte) {
	var p triggerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		b.logger.Warn("mqtt trigger payload not JSON", "error", err, "payload_size", len(payload))
		return
	}
	if p.Trigger == "" {
		b.logger.Warn("mqtt trigger payload missing trigger field")
		return
	}
	if !b.allow(p.Trigger) {
		b.logger.Debug("trigger suppressed by cooldown", "trigger", p.Trigger)
		return
	}

	b.logger.Info("trigger fired", "trigger", p.Trigger, "user_id", p.UserID)
	b.bus.Emit(events.SourceTrigger, events.KindTriggerFired, map[string]any{
		"trigger": p.Trigger,
		"user_id": p.UserID,
	})
	b.runner.RunTriggered(ctx, p.Trigger, p.UserID, p.Message)
}

// allow checks and updates the per-trigger cooldown.
func (b *Bridge) allow(trigger string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if last, ok := b.lastFired[trigger]; ok && now.Sub(last) < b.cooldown {
		return false
	}
	b.lastFired[trigger] = now
	return true
}
