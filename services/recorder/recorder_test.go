package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bme280-go/bus"
	"bme280-go/errcode"
	"bme280-go/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowOf(t *testing.T) {
	r, ok := rowOf("temperature", 1, types.TemperatureValue{DeciC: -52, TsMs: 9})
	require.True(t, ok)
	assert.Equal(t, Row{TsMs: 9, Kind: "temperature", CapID: 1, Value: -52}, r)

	r, ok = rowOf("humidity", 0, types.HumidityValue{RHx100: 10000, TsMs: 9})
	require.True(t, ok)
	assert.Equal(t, int64(10000), r.Value)

	_, ok = rowOf("temperature", 0, map[string]any{"deci_c": 1})
	assert.False(t, ok)
}

func tryLatest(conn *bus.Connection, q any) any {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	reply, err := conn.RequestWait(ctx, conn.NewMessage(TopicLatest, q, false))
	if err != nil {
		return err
	}
	return reply.Payload
}

func latest(t *testing.T, conn *bus.Connection, q any) any {
	t.Helper()
	p := tryLatest(conn, q)
	if err, ok := p.(error); ok {
		t.Fatalf("latest %v: %v", q, err)
	}
	return p
}

func TestServiceRecordsValues(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go New(b.NewConnection("recorder")).Run(ctx)

	require.Eventually(t, func() bool {
		p := tryLatest(conn, Query{Kind: "temperature"})
		return p == types.ErrorReply{Error: "not_configured"}
	}, time.Second, 10*time.Millisecond)

	path := filepath.Join(t.TempDir(), "readings.db")
	conn.Publish(conn.NewMessage(bus.T("config", "recorder"), map[string]any{"path": path}, true))

	// Values keep coming until the store is open.
	require.Eventually(t, func() bool {
		conn.Publish(conn.NewMessage(bus.T("hal", "cap", "temperature", 0, "value"),
			types.TemperatureValue{DeciC: 251, TsMs: time.Now().UnixMilli()}, false))
		_, ok := tryLatest(conn, map[string]any{"kind": "temperature", "id": 0}).(Row)
		return ok
	}, 2*time.Second, 20*time.Millisecond)

	got := latest(t, conn, Query{Kind: "temperature", ID: 0}).(Row)
	assert.Equal(t, int64(251), got.Value)

	assert.Equal(t, types.ErrorReply{Error: "no_reading"}, latest(t, conn, Query{Kind: "pressure", ID: 3}))
	assert.Equal(t, types.ErrorReply{Error: string(errcode.InvalidPayload)}, latest(t, conn, map[string]any{"id": 1}))
}
