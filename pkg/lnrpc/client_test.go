package lnrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode answers JSON-RPC requests with handler.
type fakeNode struct {
	path    string
	methods chan request
}

func startFakeNode(t *testing.T, handler func(req request) response) *fakeNode {
	t.Helper()
	dir, err := os.MkdirTemp("", "lnrpc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "lightning-rpc")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	n := &fakeNode{path: path, methods: make(chan request, 16)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				var req request
				if err := json.NewDecoder(conn).Decode(&req); err != nil {
					return
				}
				n.methods <- req
				resp := handler(req)
				resp.JSONRPC = JSONRPCVersion
				if resp.ID == 0 {
					resp.ID = req.ID
				}
				_ = json.NewEncoder(conn).Encode(resp)
			}()
		}
	}()
	return n
}

func result(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestGetInfo(t *testing.T) {
	node := startFakeNode(t, func(req request) response {
		return response{Result: result(t, map[string]any{
			"id":    "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",
			"alias": "l1",
			"binding": []map[string]any{
				{"type": "ipv4", "address": "127.0.0.1", "port": 9735},
				{"type": "local socket", "socket": "/tmp/l1-regtest/unix_socket"},
			},
		})}
	})

	c := NewClient(node.path)
	info, err := c.GetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "l1", info.Alias)

	sock, err := info.LocalSocket()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/l1-regtest/unix_socket", sock)

	req := <-node.methods
	assert.Equal(t, "getinfo", req.Method)
	assert.Equal(t, JSONRPCVersion, req.JSONRPC)
}

func TestInfoWithoutSocket(t *testing.T) {
	info := &Info{Bindings: []Binding{{Type: BindingIPv4, Address: "127.0.0.1", Port: 9735}}}
	_, err := info.LocalSocket()
	assert.True(t, errors.Is(err, ErrNoSocketBinding))
}

func TestConnectSendsParams(t *testing.T) {
	node := startFakeNode(t, func(req request) response {
		return response{Result: result(t, ConnectResult{ID: "02aa", Direction: "out"})}
	})

	c := NewClient(node.path)
	res, err := c.ConnectPeer(context.Background(), "02aa", "/tmp/0abc")
	require.NoError(t, err)
	assert.Equal(t, "out", res.Direction)

	req := <-node.methods
	assert.Equal(t, "connect", req.Method)
	params, ok := req.Params.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "02aa", params["id"])
	assert.Equal(t, "/tmp/0abc", params["host"])
}

func TestRPCError(t *testing.T) {
	node := startFakeNode(t, func(req request) response {
		return response{Error: &RPCError{Code: -32601, Message: "Unknown command 'dev-suppress-gossip'"}}
	})

	err := NewClient(node.path).DevSuppressGossip(context.Background())
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32601, rpcErr.Code)
}

func TestMismatchedID(t *testing.T) {
	node := startFakeNode(t, func(req request) response {
		return response{ID: req.ID + 100, Result: result(t, struct{}{})}
	})

	err := NewClient(node.path).Connect(context.Background(), "02aa", "x")
	assert.True(t, errors.Is(err, ErrBadResponse))
}

func TestDialFailure(t *testing.T) {
	err := NewClient(filepath.Join(t.TempDir(), "missing")).DevSuppressGossip(context.Background())
	assert.Error(t, err)
}
