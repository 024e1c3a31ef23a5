package bus

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicPubSub(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(Topic{"config", "hal"})
	conn.Publish(conn.NewMessage(Topic{"config", "hal"}, "hello", false))

	expectOneOf(t, sub, "hello")
}

func TestRetainedMessage(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")

	conn.Publish(conn.NewMessage(Topic{"config", "hal"}, "persist", true))
	sub := conn.Subscribe(Topic{"config", "hal"})

	expectOneOf(t, sub, "persist")
}

func TestIntTokens(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")

	s := c.Subscribe(T("hal", "cap", "env", "temperature", Single, "value"))
	c.Publish(b.NewMessage(T("hal", "cap", "env", "temperature", 1, "value"), "t1", true))
	c.Publish(b.NewMessage(T("hal", "cap", "env", "temperature", "1", "value"), "t1s", true))

	got := drainPayloads(t, s, 2)
	assertUnorderedEqual(t, got, []string{"t1", "t1s"})
	assert.Equal(t, "hal/cap/env/temperature/1/value", T("hal", "cap", "env", "temperature", 1, "value").String())
}

func TestQueueDropsOldest(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("test")
	s := c.Subscribe(Topic{"x"})

	for _, p := range []string{"a", "b", "c"} {
		c.Publish(b.NewMessage(Topic{"x"}, p, false))
	}
	assert.Equal(t, []string{"b", "c"}, drainPayloads(t, s, 2))
}

// -----------------------------------------------------------------------------
// Wildcards
// -----------------------------------------------------------------------------

func TestMatch(t *testing.T) {
	cases := []struct {
		p, t Topic
		want bool
	}{
		{Topic{"a", "+", "c"}, Topic{"a", "b", "c"}, true},
		{Topic{"a", "+"}, Topic{"a"}, false},
		{Topic{"a", "#"}, Topic{"a"}, true},
		{Topic{"#"}, Topic{"x", "y"}, true},
		{Topic{"a", "b"}, Topic{"a", "b", "c"}, false},
		{Topic{"a", 1}, Topic{"a", "1"}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Match(tc.p, tc.t), "%v vs %v", tc.p, tc.t)
	}
}

func TestWildcard_SingleLevel(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	s1 := c.Subscribe(Topic{"a", "+", "c"})
	s2 := c.Subscribe(Topic{"a", "+", "+"})
	s3 := c.Subscribe(Topic{"a", "b", "+"})
	sNo := c.Subscribe(Topic{"a", "+", "d"})

	c.Publish(b.NewMessage(Topic{"a", "b", "c"}, "m1", false))
	expectOneOf(t, s1, "m1")
	expectOneOf(t, s2, "m1")
	expectOneOf(t, s3, "m1")
	expectNoMessage(t, sNo)

	c.Publish(b.NewMessage(Topic{"a", "x", "y"}, "m2", false))
	expectOneOf(t, s2, "m2")
	expectNoMessage(t, s1)
	expectNoMessage(t, s3)

	c.Publish(b.NewMessage(Topic{"a", "c"}, "m3", false))
	expectNoMessage(t, s1)
	expectNoMessage(t, s2)
}

func TestWildcard_MultiLevel(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	sAHash := c.Subscribe(Topic{"a", "#"})
	sHash := c.Subscribe(Topic{"#"})
	sABHash := c.Subscribe(Topic{"a", "b", "#"})
	sAExact := c.Subscribe(Topic{"a"})

	c.Publish(b.NewMessage(Topic{"a"}, "p1", false))
	expectOneOf(t, sAHash, "p1")
	expectOneOf(t, sHash, "p1")
	expectOneOf(t, sAExact, "p1")
	expectNoMessage(t, sABHash)

	c.Publish(b.NewMessage(Topic{"a", "b", "c"}, "p3", false))
	expectOneOf(t, sAHash, "p3")
	expectOneOf(t, sHash, "p3")
	expectOneOf(t, sABHash, "p3")
	expectNoMessage(t, sAExact)
}

func TestWildcard_RetainedDelivery(t *testing.T) {
	b := NewBus(32)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(Topic{"a"}, "r0", true))
	c.Publish(b.NewMessage(Topic{"a", "b"}, "r1", true))
	c.Publish(b.NewMessage(Topic{"a", "b", "c"}, "r2", true))
	c.Publish(b.NewMessage(Topic{"a", "x"}, "r3", true))

	assertUnorderedEqual(t, drainPayloads(t, c.Subscribe(Topic{"a", "#"}), 4), []string{"r0", "r1", "r2", "r3"})
	assertUnorderedEqual(t, drainPayloads(t, c.Subscribe(Topic{"a", "+", "#"}), 3), []string{"r1", "r2", "r3"})
	assertUnorderedEqual(t, drainPayloads(t, c.Subscribe(Topic{"a", "+"}), 2), []string{"r1", "r3"})
}

func TestWildcard_RetainedClear(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(Topic{"a", "b"}, "keep", true))
	c.Publish(b.NewMessage(Topic{"a", "y"}, "other", true))
	c.Publish(b.NewMessage(Topic{"a", "b"}, nil, true))

	s := c.Subscribe(Topic{"a", "#"})
	assert.Equal(t, []string{"other"}, drainPayloads(t, s, 1))
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")
	s := c.Subscribe(Topic{"a"})

	c.Unsubscribe(s)
	c.Unsubscribe(s)
	_, ok := <-s.Channel()
	assert.False(t, ok)

	s2 := c.Subscribe(Topic{"b"})
	c.Disconnect()
	_, ok = <-s2.Channel()
	assert.False(t, ok)
}

// -----------------------------------------------------------------------------
// Request–Reply
// -----------------------------------------------------------------------------

func TestRequestReply_RequestWait(t *testing.T) {
	b := NewBus(8)
	reqConn := b.NewConnection("requester")
	respConn := b.NewConnection("responder")

	reqTopic := Topic{"hal", "cap", "env", "temperature", 0, "control", "read_now"}
	respSub := respConn.Subscribe(reqTopic)
	defer respConn.Unsubscribe(respSub)

	go func() {
		if msg, ok := <-respSub.Channel(); ok {
			respConn.Reply(msg, "OK", false)
		}
	}()

	req := b.NewMessage(reqTopic, nil, false)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	reply, err := reqConn.RequestWait(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "OK", reply.Payload)
	require.True(t, req.CanReply())
	assert.Equal(t, req.ReplyTo, reply.Topic)
}

func TestRequestReply_Timeout(t *testing.T) {
	b := NewBus(8)
	reqConn := b.NewConnection("requester")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := reqConn.RequestWait(ctx, b.NewMessage(Topic{"service", "noop"}, nil, false))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReplyWithoutReplyTo(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("test")
	assert.False(t, c.Reply(b.NewMessage(Topic{"a"}, nil, false), "x", false))
}

func TestTopic_InvalidTokenPanics(t *testing.T) {
	assert.Panics(t, func() { _ = T([]byte{1, 2, 3}) })
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func expectOneOf(t *testing.T, sub *Subscription, want string) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		require.Equal(t, want, got.Payload)
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func expectNoMessage(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message: %#v", got)
	case <-time.After(60 * time.Millisecond):
	}
}

func drainPayloads(t *testing.T, sub *Subscription, n int) []string {
	t.Helper()
	var out []string
	deadline := time.Now().Add(300 * time.Millisecond)
	for len(out) < n && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			s, ok := m.Payload.(string)
			require.True(t, ok, "non-string payload in drain: %#v", m.Payload)
			out = append(out, s)
		case <-time.After(10 * time.Millisecond):
		}
	}
	require.Len(t, out, n, "drainPayloads: got %v", out)
	return out
}

func assertUnorderedEqual(t *testing.T, got, want []string) {
	t.Helper()
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
}
