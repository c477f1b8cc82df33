package broadcast

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/alxayo/ripserver/internal/slab"
)

// clientState is the per-client lifecycle state: Handshaking -> Streaming
// -> Closed. It is read without holding mu (the tick handler's Each
// callback checks it before touching frame state), so it lives in its
// own atomic field.
type clientState int32

const (
	stateHandshaking clientState = iota
	stateStreaming
	stateClosed
)

// Client is one accepted connection's record in the registry. Everything
// under mu is written by the tick handler (advancing the outbound frame)
// and read/written by the writer goroutine (draining it); state, conn,
// and the one-shot channels are safe for concurrent access on their own.
type Client struct {
	handle    slab.Handle
	conn      net.Conn
	sessionID string
	log       *slog.Logger

	state atomic.Int32

	mu            sync.Mutex
	frame         []byte // the current outbound frame: either the shared metadata frame or the shared chunk frame
	generation    uint64 // bumped every tick; lets the writer detect a stale frame mid-write
	wrote         int    // bytes of frame already sent this tick
	needsMetadata bool

	wake chan struct{} // length-1: tick handler signals "frame is ready", non-blocking send
	done chan struct{} // closed exactly once, on destroy

	destroyOnce sync.Once
}

func newClient(conn net.Conn, sessionID string, log *slog.Logger) *Client {
	return &Client{
		conn:          conn,
		sessionID:     sessionID,
		log:           log,
		needsMetadata: true,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

func (c *Client) setState(s clientState) { c.state.Store(int32(s)) }
func (c *Client) getState() clientState  { return clientState(c.state.Load()) }
