package interactive

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/remyers/lnproxy/pkg/meshqueue"
	"github.com/remyers/lnproxy/pkg/proxy"
)

const (
	self  = meshqueue.PeerID("0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")
	other = meshqueue.PeerID("02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5")
)

type mockTunnel struct {
	mock.Mock
}

func (m *mockTunnel) Connect(ctx context.Context, peer meshqueue.PeerID) (string, error) {
	args := m.Called(ctx, peer)
	return args.String(0), args.Error(1)
}

func (m *mockTunnel) ActiveConnections() []proxy.ConnInfo {
	return m.Called().Get(0).([]proxy.ConnInfo)
}

func (m *mockTunnel) Peers() []proxy.PeerStatus {
	return m.Called().Get(0).([]proxy.PeerStatus)
}

func newTestConsole(tun Tunnel) (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	c := newConsole(tun, Status{
		Identity:   self,
		NodeSocket: "/tmp/l1/peer.sock",
		Gateway:    "127.0.0.1:9736",
		LinkState:  func() string { return "CONNECTED" },
	}, &out)
	return c, &out
}

func TestExecuteConnect(t *testing.T) {
	tun := &mockTunnel{}
	tun.On("Connect", mock.Anything, other).Return("/tmp/0abc", nil)
	c, out := newTestConsole(tun)

	assert.True(t, c.Execute(context.Background(), "connect "+string(other)))
	assert.Contains(t, out.String(), "Connecting to 02c6 via /tmp/0abc")
	tun.AssertExpectations(t)
}

func TestExecuteConnectErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"missing arg", "connect", "Usage: connect <pubkey>"},
		{"bad pubkey", "connect 02zz", "Invalid peer"},
		{"self", "connect " + string(self), "Refusing to connect to ourselves"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tun := &mockTunnel{}
			c, out := newTestConsole(tun)
			assert.True(t, c.Execute(context.Background(), tt.line))
			assert.Contains(t, out.String(), tt.want)
			tun.AssertNotCalled(t, "Connect", mock.Anything, mock.Anything)
		})
	}
}

func TestExecuteConnectFailure(t *testing.T) {
	tun := &mockTunnel{}
	tun.On("Connect", mock.Anything, other).Return("", errors.New("engine not started"))
	c, out := newTestConsole(tun)

	c.Execute(context.Background(), "c "+string(other))
	assert.Contains(t, out.String(), "Connect failed: engine not started")
}

func TestExecutePeers(t *testing.T) {
	tun := &mockTunnel{}
	tun.On("Peers").Return([]proxy.PeerStatus{{Peer: other, ToSend: 2, Recvd: 1, Active: 1}})
	c, out := newTestConsole(tun)

	c.Execute(context.Background(), "peers")
	assert.Contains(t, out.String(), "TO_SEND")
	assert.Contains(t, out.String(), string(other))

	empty := &mockTunnel{}
	empty.On("Peers").Return([]proxy.PeerStatus(nil))
	c, out = newTestConsole(empty)
	c.Execute(context.Background(), "peers")
	assert.Contains(t, out.String(), "No peers")
}

func TestExecuteStatus(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tun := &mockTunnel{}
	tun.On("ActiveConnections").Return([]proxy.ConnInfo{
		{ID: "c1", Peer: other, Role: proxy.RoleOutbound, Since: now.Add(-90 * time.Second)},
	})
	c, out := newTestConsole(tun)
	c.now = func() time.Time { return now }

	c.Execute(context.Background(), "status")
	s := out.String()
	assert.Contains(t, s, "Identity:    "+string(self))
	assert.Contains(t, s, "Mesh link:   CONNECTED")
	assert.Contains(t, s, "Connections: 1")
	assert.Contains(t, s, "c1 outbound 02c6 (1m30s)")
}

func TestExecuteQuitAndUnknown(t *testing.T) {
	c, out := newTestConsole(&mockTunnel{})

	assert.True(t, c.Execute(context.Background(), "   "))
	assert.True(t, c.Execute(context.Background(), "frobnicate"))
	assert.Contains(t, out.String(), "Unknown command: frobnicate")

	assert.False(t, c.Execute(context.Background(), "QUIT"))
}
