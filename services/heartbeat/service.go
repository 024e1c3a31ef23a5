// Package heartbeat logs and publishes a periodic liveness beat.
package heartbeat

import (
	"context"
	"time"

	"bme280-go/bus"

	logger "github.com/d2r2/go-logger"
)

var lg = logger.NewPackageLogger("heartbeat", logger.InfoLevel)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	TopicBeat            = bus.T("heartbeat")
)

const minInterval = 10 * time.Millisecond

// Beat is published on TopicBeat at every tick.
type Beat struct {
	TS     time.Time     `json:"ts"`
	Uptime time.Duration `json:"uptime"`
}

type Service struct {
	Interval time.Duration // initial; config/heartbeat {"interval": seconds} overrides
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	iv := s.Interval
	if iv <= 0 {
		iv = time.Second
	}
	start := time.Now()
	tick := time.NewTicker(iv)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("heartbeat service stopping")
			return
		case t := <-tick.C:
			lg.Debugf("%s heartbeat", t.Format("15:04:05"))
			conn.Publish(conn.NewMessage(TopicBeat, Beat{TS: t, Uptime: t.Sub(start)}, false))
		case msg := <-cfgSub.Channel():
			if d, ok := interval(msg.Payload); ok {
				tick.Reset(d)
				lg.Infof("heartbeat interval set to %s", d)
			} else {
				lg.Warningf("ignoring heartbeat config %v", msg.Payload)
			}
		}
	}
}

func interval(p any) (time.Duration, bool) {
	m, ok := p.(map[string]any)
	if !ok {
		return 0, false
	}
	var secs float64
	switch v := m["interval"].(type) {
	case float64:
		secs = v
	case int:
		secs = float64(v)
	default:
		return 0, false
	}
	d := time.Duration(secs * float64(time.Second))
	if d < minInterval {
		return 0, false
	}
	return d, true
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
