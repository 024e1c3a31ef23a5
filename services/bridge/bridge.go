// Package bridge forwards HAL readings and link states to an MQTT broker.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bme280-go/bus"
	"bme280-go/errcode"

	logger "github.com/d2r2/go-logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var lg = logger.NewPackageLogger("bridge", logger.InfoLevel)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start starts the bridge service. It blocks until ctx is cancelled.
// It listens for config on topic {"config","bridge"} and (re)connects to the broker.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &Service{
		conn:       conn,
		stateTopic: bus.T("bridge", "state"),
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the configuration expected on "config/bridge".
type Config struct {
	Broker   string `json:"broker"`    // e.g. "tcp://localhost:1883"
	ClientID string `json:"client_id"` // defaults to "bme280-bridge"
	Prefix   string `json:"prefix"`    // remote topic prefix, defaults to "bme280"
	QoS      byte   `json:"qos"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

var errNoBroker = errors.New("bridge config requires broker")

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn       *bus.Connection
	stateTopic bus.Topic

	mu     sync.Mutex
	curRun context.CancelFunc
	curCfg atomic.Value // stores Config
}

// Local topics forwarded to the broker.
var forwarded = []bus.Topic{
	bus.T("hal", "state"),
	bus.T("hal", "cap", bus.Single, bus.Single, "value"),
	bus.T("hal", "cap", bus.Single, bus.Single, "state"),
}

// run waits for config and supervises a single link instance.
func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.T("config", "bridge"))
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", errcode.Wrap(errcode.InvalidPayload, "config", err))
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.mu.Lock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	s.curCfg.Store(cfg)
	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	newBackoff := func() func() time.Duration { return backoffSeq(250*time.Millisecond, 5*time.Second) }
	backoff := newBackoff()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c := Dial(cfg)
		if err := c.Connect(); err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		lg.Infof("connected to %s", cfg.Broker)
		// A link that came up starts the retry sequence over.
		backoff = newBackoff()
		err := s.handleLink(ctx, c, cfg)
		c.Disconnect()
		if err == nil {
			return
		}
		delay := backoff()
		s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
		if !sleep(ctx, delay) {
			return
		}
	}
}

// handleLink forwards local messages until ctx ends or a publish fails.
func (s *Service) handleLink(parent context.Context, c Client, cfg Config) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	subs := make([]*bus.Subscription, 0, len(forwarded))
	for _, t := range forwarded {
		subs = append(subs, s.conn.Subscribe(t))
	}
	defer func() {
		for _, sub := range subs {
			s.conn.Unsubscribe(sub)
		}
	}()

	s.publishState("up", "link_established", nil)

	in := make(chan *bus.Message, 16)
	for _, sub := range subs {
		go func(ch <-chan *bus.Message) {
			for {
				select {
				case <-ctx.Done():
					return
				case m, ok := <-ch:
					if !ok {
						return
					}
					select {
					case in <- m:
					case <-ctx.Done():
						return
					}
				}
			}
		}(sub.Channel())
	}

	for {
		select {
		case <-parent.Done():
			return nil
		case m := <-in:
			if err := s.forward(c, cfg, m); err != nil {
				return err
			}
		}
	}
}

func (s *Service) forward(c Client, cfg Config, m *bus.Message) error {
	topic, retained := RemoteTopic(cfg.Prefix, m.Topic)
	var payload []byte
	if m.Payload != nil {
		b, err := json.Marshal(m.Payload)
		if err != nil {
			lg.Warningf("drop %s: %v", m.Topic, err)
			return nil
		}
		payload = b
	}
	lg.Debugf("-> %s %s", topic, payload)
	return c.Publish(topic, cfg.QoS, retained || m.Retained, payload)
}

// RemoteTopic maps a local topic onto the broker namespace and reports
// whether the broker should retain it. Values map to <prefix>/<kind>/<id>.
func RemoteTopic(prefix string, t bus.Topic) (string, bool) {
	if prefix == "" {
		prefix = "bme280"
	}
	parts := strings.Split(t.String(), "/")
	if len(parts) == 5 && parts[0] == "hal" && parts[1] == "cap" {
		if parts[4] == "value" {
			return prefix + "/" + parts[2] + "/" + parts[3], false
		}
		return prefix + "/" + strings.Join(parts[2:], "/"), true
	}
	return prefix + "/" + t.String(), true
}

// -----------------------------------------------------------------------------
// MQTT client
// -----------------------------------------------------------------------------

// Client is the part of an MQTT client the bridge needs.
type Client interface {
	Connect() error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Disconnect()
}

// Dial builds a client for cfg. Tests replace it.
var Dial = func(cfg Config) Client { return newPahoClient(cfg) }

var errTimeout = errors.New("mqtt: timeout")

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 2 * time.Second
)

type pahoClient struct {
	c mqtt.Client
}

func newPahoClient(cfg Config) *pahoClient {
	id := cfg.ClientID
	if id == "" {
		id = "bme280-bridge"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(id).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(false)
	opts.Username = cfg.Username
	opts.Password = cfg.Password
	return &pahoClient{c: mqtt.NewClient(opts)}
}

func (p *pahoClient) Connect() error {
	return wait(p.c.Connect(), connectTimeout)
}

func (p *pahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return wait(p.c.Publish(topic, qos, retained, payload), publishTimeout)
}

func (p *pahoClient) Disconnect() { p.c.Disconnect(250) }

func wait(t mqtt.Token, d time.Duration) error {
	if !t.WaitTimeout(d) {
		return errTimeout
	}
	return t.Error()
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (Config, error) {
	var cfg Config
	switch v := p.(type) {
	case Config:
		cfg = v
	case []byte:
		if err := json.Unmarshal(v, &cfg); err != nil {
			return cfg, err
		}
	case string:
		if err := json.Unmarshal([]byte(v), &cfg); err != nil {
			return cfg, err
		}
	case map[string]any:
		// Already a decoded object; re-marshal for simplicity.
		b, err := json.Marshal(v)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config payload type: %T", p)
	}
	if cfg.Broker == "" {
		return cfg, errNoBroker
	}
	return cfg, nil
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,  // "up", "degraded", "error", "idle"
		"status": status, // short machine string
		"ts_ms":  time.Now().UnixMilli(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(s.stateTopic, payload, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	var cur = min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
