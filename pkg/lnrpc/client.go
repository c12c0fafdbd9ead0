// Package lnrpc is a minimal client for a Lightning node's JSON-RPC socket.
//
// Each call opens its own connection to the node's lightning-rpc Unix
// socket, sends one JSON-RPC 2.0 request and reads one response.
package lnrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// JSONRPCVersion is the protocol version sent with every request.
const JSONRPCVersion = "2.0"

// DefaultTimeout bounds one call when the context has no deadline.
const DefaultTimeout = 30 * time.Second

// Binding types reported by getinfo.
const (
	BindingLocalSocket = "local socket"
	BindingIPv4        = "ipv4"
	BindingIPv6        = "ipv6"
)

// Client errors.
var (
	// ErrNoSocketBinding indicates getinfo listed no Unix socket binding.
	ErrNoSocketBinding = errors.New("node has no local socket binding")

	// ErrBadResponse indicates a response that is not valid JSON-RPC.
	ErrBadResponse = errors.New("bad rpc response")
)

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements error.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Binding is one address the node listens on.
type Binding struct {
	Type    string `json:"type"`
	Socket  string `json:"socket,omitempty"`
	Address string `json:"address,omitempty"`
	Port    int    `json:"port,omitempty"`
}

// Info is the subset of getinfo the tunnel uses.
type Info struct {
	ID          string    `json:"id"`
	Alias       string    `json:"alias"`
	Network     string    `json:"network"`
	BlockHeight int       `json:"blockheight"`
	Version     string    `json:"version"`
	Bindings    []Binding `json:"binding"`
}

// LocalSocket returns the first Unix socket binding.
func (i *Info) LocalSocket() (string, error) {
	for _, b := range i.Bindings {
		if b.Type == BindingLocalSocket && b.Socket != "" {
			return b.Socket, nil
		}
	}
	return "", ErrNoSocketBinding
}

// ConnectResult is the result of connect.
type ConnectResult struct {
	ID        string `json:"id"`
	Features  string `json:"features"`
	Direction string `json:"direction"`
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Client calls a node over its RPC socket. It is safe for concurrent use.
type Client struct {
	path   string
	nextID atomic.Uint64
}

// NewClient creates a client for the RPC socket at path.
func NewClient(path string) *Client {
	return &Client{path: path}
}

// Path returns the RPC socket path.
func (c *Client) Path() string {
	return c.path
}

// Call sends method with params and decodes the result into out (if non-nil).
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	if params == nil {
		params = struct{}{}
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.path)
	if err != nil {
		return fmt.Errorf("%s: dial rpc: %w", method, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	req := request{JSONRPC: JSONRPCVersion, ID: c.nextID.Add(1), Method: method, Params: params}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("%s: send: %w", method, err)
	}

	var resp response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", method, ctx.Err())
		}
		return fmt.Errorf("%s: %w: %v", method, ErrBadResponse, err)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("%s: %w: id %d, want %d", method, ErrBadResponse, resp.ID, req.ID)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %w", method, resp.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%s: %w: %v", method, ErrBadResponse, err)
	}
	return nil
}

// GetInfo returns the node's identity and bindings.
func (c *Client) GetInfo(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.Call(ctx, "getinfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Connect asks the node to connect to peer id at host. host may be a Unix
// socket path.
func (c *Client) Connect(ctx context.Context, id, host string) error {
	_, err := c.ConnectPeer(ctx, id, host)
	return err
}

// ConnectPeer is Connect returning the node's result.
func (c *Client) ConnectPeer(ctx context.Context, id, host string) (*ConnectResult, error) {
	var res ConnectResult
	params := map[string]string{"id": id, "host": host}
	if err := c.Call(ctx, "connect", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DevSuppressGossip stops the node from sending gossip, which would swamp
// a low-bandwidth mesh. The node must run in developer mode.
func (c *Client) DevSuppressGossip(ctx context.Context) error {
	return c.Call(ctx, "dev-suppress-gossip", nil, nil)
}
