// Package broadcast implements the concurrent broadcast engine: the
// accept loop, per-client handshake and lifecycle, the 1Hz tick that
// fans the current track's audio out to every initialized client, and
// the tail-drop backpressure policy for slow readers.
//
// The reference design is a single-threaded epoll event loop. This port
// keeps its semantics (ascending-handle fan-out order, tail-drop on a
// slow client, metadata-before-audio on every track boundary) but
// expresses the concurrency idiomatically: one goroutine per accepted
// connection instead of one readiness registration per socket, with
// Go's netpoller standing in for epoll underneath net.Conn's blocking
// calls.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	riperrors "github.com/alxayo/ripserver/internal/errors"
	"github.com/alxayo/ripserver/internal/logger"
	"github.com/alxayo/ripserver/internal/oslayer"
	"github.com/alxayo/ripserver/internal/playlist"
	"github.com/alxayo/ripserver/internal/rip"
	"github.com/alxayo/ripserver/internal/slab"
)

// Config holds the engine's tunable knobs. Zero values are replaced with
// the reference defaults by applyDefaults.
type Config struct {
	ListenAddr     string
	MaxClients     int           // reference: 64
	TickInterval   time.Duration // reference: 1 second
	WriteSliceSize int           // bounded write size per Write call, reference: 4096
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9000"
	}
	if c.MaxClients == 0 {
		c.MaxClients = 64
	}
	if c.TickInterval == 0 {
		c.TickInterval = time.Second
	}
	if c.WriteSliceSize == 0 {
		c.WriteSliceSize = 4096
	}
}

// Engine is the broadcast server: a listener, a registry of clients, and
// the currently playing track's decoder state.
type Engine struct {
	cfg Config
	log *slog.Logger

	listener net.Listener
	clients  *slab.Slab[*Client]
	playlist *playlist.Playlist

	trackMu       sync.Mutex
	trackFile     *os.File
	chunkReader   *rip.ChunkReader
	metadataFrame []byte

	wg sync.WaitGroup
}

// New constructs an Engine and loads the playlist's first track. It does
// not bind the listener yet; that happens in Run.
func New(cfg Config, pl *playlist.Playlist) (*Engine, error) {
	cfg.applyDefaults()

	e := &Engine{
		cfg:      cfg,
		log:      logger.Logger().With("component", "broadcast"),
		clients:  slab.New[*Client](cfg.MaxClients),
		playlist: pl,
	}

	if err := e.openTrack(pl.Current()); err != nil {
		return nil, fmt.Errorf("broadcast.New: loading first track: %w", err)
	}

	return e, nil
}

// Run binds the listener, starts the accept and tick loops, and blocks
// until ctx is canceled. There is no graceful drain on shutdown: Run
// closes the listener and every client socket, then returns, without
// waiting for in-flight per-client goroutines.
func (e *Engine) Run(ctx context.Context) error {
	ln, err := oslayer.BindListener(e.cfg.ListenAddr)
	if err != nil {
		return err
	}
	e.listener = ln
	e.log.Info("broadcast engine listening", "addr", ln.Addr().String(), "max_clients", e.cfg.MaxClients)

	ticker := oslayer.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.wg.Add(2)
	go e.acceptLoop(ctx)
	go e.tickLoop(ctx, ticker)

	<-ctx.Done()
	e.log.Info("shutdown signal observed, closing listener and client sockets")
	_ = e.listener.Close()
	e.destroyAllClients()
	e.wg.Wait()

	e.trackMu.Lock()
	if e.trackFile != nil {
		_ = e.trackFile.Close()
	}
	e.trackMu.Unlock()

	return nil
}

func (e *Engine) acceptLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			e.log.Warn("accept error", "error", err)
			continue
		}
		e.handleAccept(conn)
	}
}

// handleAccept registers a new connection in the client registry,
// dropping it immediately if the registry is full, and spawns its
// handshake goroutine.
func (e *Engine) handleAccept(conn net.Conn) {
	sessionID := uuid.NewString()
	c := newClient(conn, sessionID, nil)

	handle, err := e.clients.Insert(c)
	if err != nil {
		e.log.Warn("registry full, dropping connection", "peer_addr", conn.RemoteAddr().String())
		_ = conn.Close()
		return
	}
	c.handle = handle
	c.log = logger.WithConn(e.log, int(handle), sessionID, conn.RemoteAddr().String())
	c.log.Info("client accepted")

	go e.handshake(c)
}

// handshake performs the single-byte handshake read. Anything other than
// 'a' (0x61) — a different byte, 0 bytes, or an error — is terminal.
func (e *Engine) handshake(c *Client) {
	var b [1]byte
	n, err := c.conn.Read(b[:])
	if err != nil || n == 0 || b[0] != 'a' {
		e.destroyClient(c, "handshake failed")
		return
	}

	c.setState(stateStreaming)
	c.log.Info("handshake complete")

	go e.writer(c)
	go e.hangupDetector(c)
}

// hangupDetector blocks on a read of the client's socket after the
// handshake. The client never sends further bytes once streaming, so
// any readable event — data, EOF, or error — is treated as hangup.
func (e *Engine) hangupDetector(c *Client) {
	var b [1]byte
	_, _ = c.conn.Read(b[:])
	e.destroyClient(c, "hangup or error readiness")
}

// writer owns the client's outbound half: it wakes on the tick handler's
// signal and drains the current frame in bounded slices.
func (e *Engine) writer(c *Client) {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
			e.drainFrame(c)
		}
	}
}

// drainFrame sends the client's current frame starting at its recorded
// offset, in slices of at most WriteSliceSize bytes, checking the
// generation counter between slices so a frame swapped in by a newer
// tick is not partially overwritten underfoot — instead the write loop
// simply abandons the stale remainder, matching the tail-drop policy.
func (e *Engine) drainFrame(c *Client) {
	for {
		c.mu.Lock()
		frame := c.frame
		wrote := c.wrote
		gen := c.generation
		c.mu.Unlock()

		if frame == nil || wrote >= len(frame) {
			return
		}

		end := wrote + e.cfg.WriteSliceSize
		if end > len(frame) {
			end = len(frame)
		}

		n, err := c.conn.Write(frame[wrote:end])
		if err != nil || n == 0 {
			e.destroyClient(c, "write error")
			return
		}

		c.mu.Lock()
		if c.generation != gen {
			// A newer tick already swapped in a different frame; the
			// remainder of this one is abandoned (tail-drop).
			c.mu.Unlock()
			return
		}
		c.wrote += n
		if c.wrote >= len(c.frame) {
			c.needsMetadata = false
		}
		c.mu.Unlock()
	}
}

func (e *Engine) destroyClient(c *Client, reason string) {
	c.destroyOnce.Do(func() {
		c.setState(stateClosed)
		close(c.done)
		_ = c.conn.Close()
		e.clients.Remove(c.handle)
		if c.log != nil {
			c.log.Info("client destroyed", "reason", reason)
		}
	})
}

func (e *Engine) destroyAllClients() {
	for _, h := range e.clients.Handles() {
		if c, ok := e.clients.Get(h); ok {
			e.destroyClient(c, "server shutdown")
		}
	}
}

func (e *Engine) tickLoop(ctx context.Context, ticker *time.Ticker) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// tick pulls the next chunk, advances the playlist on end-of-track
// (retrying the read against the new track), then fans the resulting
// frame out to every streaming client in ascending-handle order.
func (e *Engine) tick() {
	chunkFrame, boundary, ok := e.nextChunkFrame()
	if !ok {
		return
	}

	e.trackMu.Lock()
	metadataFrame := e.metadataFrame
	e.trackMu.Unlock()

	e.clients.Each(func(_ slab.Handle, c *Client) {
		if c.getState() != stateStreaming {
			return
		}

		c.mu.Lock()
		c.wrote = 0
		if boundary {
			c.needsMetadata = true
		}
		if c.needsMetadata {
			c.frame = metadataFrame
		} else {
			c.frame = chunkFrame
		}
		c.generation++
		c.mu.Unlock()

		select {
		case c.wake <- struct{}{}:
		default:
		}
	})
}

// nextChunkFrame reads the next audio chunk, advancing the playlist on
// end-of-track (or codec failure), and returns the frame to fan out this
// tick, whether this tick is a track boundary, and whether a frame is
// available at all (false if every track in the playlist failed to open,
// or if the newly opened track yielded no chunk, leaving nothing to
// broadcast this tick).
//
// The returned slice is freshly allocated every tick rather than reused
// in place: a slow client's writer goroutine may still be reading a
// previous tick's frame when this one is produced, for an unbounded
// number of ticks, and mutating a shared buffer underneath a concurrent
// reader would be a data race, not just the intended "client loses the
// tail" semantics. A pooled buffer would need a release tied to every
// client that was handed it, across both the normal-completion and
// abandon-on-stale-generation paths; a plain allocation sidesteps that
// bookkeeping entirely.
func (e *Engine) nextChunkFrame() (frame []byte, boundary bool, ok bool) {
	e.trackMu.Lock()
	defer e.trackMu.Unlock()

	buf := make([]byte, rip.ChunkMax)
	frameLen, _, err := e.chunkReader.ReadChunk(buf)
	if err != nil {
		e.log.Error("chunk read failed, advancing to next track", "error", err)
		frameLen = 0
	}

	if frameLen > 0 {
		return buf[:frameLen], false, true
	}

	if !e.advanceTrackLocked() {
		e.log.Error("no playable track remains in the playlist; broadcast stalled this tick")
		return nil, false, false
	}

	buf = make([]byte, rip.ChunkMax)
	frameLen, _, err = e.chunkReader.ReadChunk(buf)
	if err != nil || frameLen == 0 {
		e.log.Error("failed to read from newly opened track", "error", err)
		return nil, false, false
	}
	return buf[:frameLen], true, true
}

// advanceTrackLocked walks the playlist forward (with wraparound) until
// a track opens successfully or every track has been tried once. Called
// with trackMu held. A codec failure mid-playlist is logged and skipped
// rather than treated as fatal; only total playlist exhaustion stalls
// the broadcast.
func (e *Engine) advanceTrackLocked() bool {
	n := e.playlist.Len()
	for i := 0; i < n; i++ {
		path := e.playlist.Advance()
		if err := e.openTrackLocked(path); err == nil {
			return true
		} else {
			e.log.Error("failed to open track, skipping", "path", path, "error", err)
		}
	}
	return false
}

// openTrack opens path as the current track: parses its metadata,
// encodes the metadata frame, and resets the chunk reader's cumulative
// time counter to zero.
func (e *Engine) openTrack(path string) error {
	e.trackMu.Lock()
	defer e.trackMu.Unlock()
	return e.openTrackLocked(path)
}

func (e *Engine) openTrackLocked(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return riperrors.NewCodecError("broadcast.openTrack", err)
	}

	metadata, err := rip.ParseMetadata(f)
	if err != nil {
		_ = f.Close()
		return err
	}

	frame, err := rip.EncodeMetadata(metadata)
	if err != nil {
		_ = f.Close()
		return err
	}

	if e.trackFile != nil {
		_ = e.trackFile.Close()
	}
	e.trackFile = f
	e.chunkReader = rip.NewChunkReader(f)
	e.metadataFrame = frame

	e.log.Info("track loaded", "path", path, "name", metadata.Name, "artist", metadata.Artist,
		"album", metadata.Album, "length_centiseconds", metadata.LengthCentiseconds)
	return nil
}

// ClientCount returns the number of clients currently in the registry
// (handshaking or streaming).
func (e *Engine) ClientCount() int { return e.clients.Len() }

// Addr returns the bound listener address, or nil if Run has not been
// called yet.
func (e *Engine) Addr() net.Addr {
	if e.listener == nil {
		return nil
	}
	return e.listener.Addr()
}
