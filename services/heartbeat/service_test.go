package heartbeat

import (
	"context"
	"testing"
	"time"

	"bme280-go/bus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterval(t *testing.T) {
	cases := []struct {
		in   any
		want time.Duration
		ok   bool
	}{
		{map[string]any{"interval": 2.0}, 2 * time.Second, true},
		{map[string]any{"interval": 1}, time.Second, true},
		{map[string]any{"interval": 0.5}, 500 * time.Millisecond, true},
		{map[string]any{"interval": 0.0}, 0, false},
		{map[string]any{"interval": "2"}, 0, false},
		{"2", 0, false},
	}
	for _, c := range cases {
		got, ok := interval(c.in)
		assert.Equal(t, c.ok, ok, "%v", c.in)
		assert.Equal(t, c.want, got, "%v", c.in)
	}
}

func TestBeatsFollowConfig(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("test")
	sub := conn.Subscribe(TopicBeat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &Service{Interval: time.Hour}
	require.NoError(t, s.Start(ctx, b.NewConnection("heartbeat")))

	// Retained, so it reaches the service whenever it subscribes.
	conn.Publish(conn.NewMessage(topicConfigHeartbeat, map[string]any{"interval": 0.02}, true))

	var last Beat
	for i := 0; i < 2; i++ {
		select {
		case m := <-sub.Channel():
			beat := m.Payload.(Beat)
			assert.True(t, beat.Uptime > last.Uptime)
			last = beat
		case <-time.After(time.Second):
			t.Fatal("no heartbeat")
		}
	}
}
