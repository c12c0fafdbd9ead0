// Package interactive provides the interactive console of the lnproxy
// daemon.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"

	"github.com/remyers/lnproxy/pkg/meshqueue"
	"github.com/remyers/lnproxy/pkg/proxy"
)

// Tunnel is the part of the proxy engine the console drives.
type Tunnel interface {
	Connect(ctx context.Context, peer meshqueue.PeerID) (string, error)
	ActiveConnections() []proxy.ConnInfo
	Peers() []proxy.PeerStatus
}

// Status is the daemon information shown by the status command.
type Status struct {
	Identity   meshqueue.PeerID
	NodeSocket string
	Gateway    string
	LinkState  func() string
}

// Console handles interactive mode for lnproxy.
type Console struct {
	tunnel Tunnel
	status Status
	out    io.Writer
	rl     *readline.Instance
	now    func() time.Time
}

// New creates a console reading from the terminal.
func New(tunnel Tunnel, status Status) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "lnproxy> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := newConsole(tunnel, status, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newConsole(tunnel Tunnel, status Status, out io.Writer) *Console {
	return &Console{tunnel: tunnel, status: status, out: out, now: time.Now}
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use it for log output so log lines do not garble the input line.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx ends. It calls cancel on quit
// and EOF.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Execute(ctx, line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line. It reports false when the console should
// exit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "connect", "c":
		c.cmdConnect(ctx, args)

	case "peers", "p":
		c.cmdPeers()

	case "status", "s":
		c.cmdStatus()

	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
lnproxy Commands:
  connect <pubkey>  - Open a tunnel from the local node to a mesh peer
  peers             - List peers with queue depths and connections
  status            - Show identity, node socket and mesh link
  help              - Show this help
  quit              - Exit`)
}

func (c *Console) cmdConnect(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: connect <pubkey>")
		return
	}
	peer, err := meshqueue.ParsePeerID(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Invalid peer: %v\n", err)
		return
	}
	if peer == c.status.Identity {
		fmt.Fprintln(c.out, "Refusing to connect to ourselves")
		return
	}

	path, err := c.tunnel.Connect(ctx, peer)
	if err != nil {
		fmt.Fprintf(c.out, "Connect failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Connecting to %s via %s\n", peer.Short(), path)
}

func (c *Console) cmdPeers() {
	peers := c.tunnel.Peers()
	if len(peers) == 0 {
		fmt.Fprintln(c.out, "No peers")
		return
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PEER\tTO_SEND\tRECVD\tACTIVE\tDIALING")
	for _, p := range peers {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%v\n", p.Peer, p.ToSend, p.Recvd, p.Active, p.Dialing)
	}
	_ = tw.Flush()
}

func (c *Console) cmdStatus() {
	fmt.Fprintf(c.out, "Identity:    %s\n", c.status.Identity)
	fmt.Fprintf(c.out, "Node socket: %s\n", c.status.NodeSocket)
	fmt.Fprintf(c.out, "Gateway:     %s\n", c.status.Gateway)
	if c.status.LinkState != nil {
		fmt.Fprintf(c.out, "Mesh link:   %s\n", c.status.LinkState())
	}

	conns := c.tunnel.ActiveConnections()
	fmt.Fprintf(c.out, "Connections: %d\n", len(conns))
	for _, conn := range conns {
		fmt.Fprintf(c.out, "  %s %-8s %s (%s)\n",
			conn.ID, conn.Role, conn.Peer.Short(), c.now().Sub(conn.Since).Truncate(time.Second))
	}
}
