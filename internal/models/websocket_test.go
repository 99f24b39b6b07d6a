package models

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub()
	go h.Run(ctx)
	return h
}

func newTestClient(h *Hub, targets ...Target) *Client {
	return &Client{Hub: h, Send: make(chan []byte, 4), Targets: targets}
}

func TestHub_PublishReachesSubscribers(t *testing.T) {
	h := startHub(t)
	partner := newTestClient(h, PartnerTarget(7), ChannelTarget(1))
	other := newTestClient(h, PartnerTarget(8))
	h.Register <- partner
	h.Register <- other

	require.Eventually(t, func() bool { return h.IsSubscribed(PartnerTarget(8)) }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, h.Publish(ChannelTarget(1), []byte("hello")))
	assert.Equal(t, "hello", string(<-partner.Send))
	assert.Empty(t, other.Send)

	assert.Equal(t, 0, h.Publish(ChannelTarget(2), []byte("nobody")))
}

func TestHub_SubscribeReplacesTargets(t *testing.T) {
	h := startHub(t)
	c := newTestClient(h, ChannelTarget(1))
	h.Register <- c
	require.Eventually(t, func() bool { return h.IsSubscribed(ChannelTarget(1)) }, time.Second, 5*time.Millisecond)

	h.Subscribe(c, []Target{ChannelTarget(2)})
	assert.False(t, h.IsSubscribed(ChannelTarget(1)))
	assert.True(t, h.IsSubscribed(ChannelTarget(2)))
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h := startHub(t)
	c := newTestClient(h, GuestTarget(3))
	h.Register <- c
	h.Unregister <- c

	require.Eventually(t, func() bool { return !h.IsSubscribed(GuestTarget(3)) }, time.Second, 5*time.Millisecond)
	_, ok := <-c.Send
	assert.False(t, ok)
}

func TestHub_JoinAndLeaveAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub()
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := newTestClient(h, PartnerTarget(1))
	require.True(t, h.Join(c))
	cancel()
	<-stopped

	left := make(chan struct{})
	go func() {
		h.Leave(c)
		assert.False(t, h.Join(newTestClient(h, PartnerTarget(2))))
		close(left)
	}()
	select {
	case <-left:
	case <-time.After(time.Second):
		t.Fatal("Join or Leave blocked on a stopped hub")
	}
}

func TestHub_FullBufferIsSkipped(t *testing.T) {
	h := startHub(t)
	c := &Client{Hub: h, Send: make(chan []byte), Targets: []Target{PartnerTarget(1)}}
	h.Register <- c
	require.Eventually(t, func() bool { return h.IsSubscribed(PartnerTarget(1)) }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, h.Publish(PartnerTarget(1), []byte("dropped")))
}

func TestPersona_Target(t *testing.T) {
	target, ok := Persona{UserID: 2, PartnerID: 3}.Target()
	assert.True(t, ok)
	assert.Equal(t, "res.partner:3", target.String())

	target, ok = Persona{GuestID: 4}.Target()
	assert.True(t, ok)
	assert.Equal(t, "mail.guest:4", target.String())

	_, ok = Persona{}.Target()
	assert.False(t, ok)
	assert.True(t, Persona{}.IsAnonymous())
	assert.True(t, Persona{GuestID: 4}.IsGuest())
}

func TestDatetimeOrFalse(t *testing.T) {
	assert.Equal(t, false, DatetimeOrFalse(nil))
	forever := MuteForever
	assert.Equal(t, "9999-12-31 23:59:59", DatetimeOrFalse(&forever))
}
