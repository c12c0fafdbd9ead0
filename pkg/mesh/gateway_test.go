package mesh

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remyers/lnproxy/pkg/meshqueue"
)

const waitFor = 3 * time.Second

func startGateway(t *testing.T, addr string) *Gateway {
	t.Helper()
	g := NewGateway(GatewayConfig{Address: addr})
	require.NoError(t, g.Start(context.Background()))
	t.Cleanup(func() { _ = g.Stop() })
	return g
}

func dialLink(t *testing.T, cfg GatewayLinkConfig) *GatewayLink {
	t.Helper()
	l, err := DialGateway(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func waitAttached(t *testing.T, g *Gateway, ids ...meshqueue.PeerID) {
	t.Helper()
	require.Eventually(t, func() bool { return len(g.Peers()) == len(ids) }, waitFor, 5*time.Millisecond)
	assert.Equal(t, ids, g.Peers())
}

func TestGatewayRoutesBetweenLinks(t *testing.T) {
	g := startGateway(t, "127.0.0.1:0")
	addr := g.Addr().String()

	a := dialLink(t, GatewayLinkConfig{Address: addr, Identity: alice, Compress: true})
	b := dialLink(t, GatewayLinkConfig{Address: addr, Identity: bob})
	waitAttached(t, g, alice, bob)
	assert.Equal(t, StateConnected, a.State())

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	big := make([]byte, 2000)
	require.NoError(t, a.Send(ctx, Envelope{To: bob, Payload: []byte("hi")}))
	require.NoError(t, a.Send(ctx, Envelope{To: bob, Payload: big}))

	env, err := b.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, meshqueue.PeerID(alice), env.From)
	assert.Equal(t, []byte("hi"), env.Payload)

	env, err = b.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, big, env.Payload)

	require.NoError(t, b.Send(ctx, Envelope{To: alice, Payload: []byte("back")}))
	env, err = a.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("back"), env.Payload)

	assert.EqualValues(t, 3, g.Stats().Routed)
}

func TestGatewayDropsUnknownDestination(t *testing.T) {
	g := startGateway(t, "127.0.0.1:0")
	a := dialLink(t, GatewayLinkConfig{Address: g.Addr().String(), Identity: alice})
	waitAttached(t, g, alice)

	require.NoError(t, a.Send(context.Background(), Envelope{To: bob, Payload: []byte{1}}))
	require.Eventually(t, func() bool { return g.Stats().Dropped == 1 }, waitFor, 5*time.Millisecond)
}

func TestGatewayLinkRedials(t *testing.T) {
	// Reserve a port, then free it so the first dials fail.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	mock := clock.NewMock()
	var (
		mu     sync.Mutex
		states []LinkState
	)
	l := dialLink(t, GatewayLinkConfig{
		Address:  addr,
		Identity: alice,
		Clock:    mock,
		Backoff:  BackoffConfig{Initial: time.Second, Max: time.Second},
		OnStateChange: func(_, s LinkState) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	assert.Equal(t, StateConnecting, l.State())
	assert.ErrorIs(t, l.Send(context.Background(), Envelope{To: bob}), ErrNotConnected)

	g := startGateway(t, addr)
	require.Eventually(t, func() bool {
		mock.Add(2 * time.Second)
		return l.State() == StateConnected
	}, waitFor, 10*time.Millisecond)
	waitAttached(t, g, alice)

	// Losing the gateway puts the link back to connecting.
	require.NoError(t, g.Stop())
	require.Eventually(t, func() bool { return l.State() == StateConnecting }, waitFor, 5*time.Millisecond)

	require.NoError(t, l.Close())
	assert.Equal(t, StateClosed, l.State())
	assert.ErrorIs(t, l.Send(context.Background(), Envelope{To: bob}), ErrLinkClosed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []LinkState{StateConnected, StateConnecting, StateClosed}, states)
}

func TestDialGatewayValidates(t *testing.T) {
	_, err := DialGateway(context.Background(), GatewayLinkConfig{Identity: alice})
	assert.Error(t, err)
	_, err = DialGateway(context.Background(), GatewayLinkConfig{Address: "127.0.0.1:1"})
	assert.Error(t, err)
}
