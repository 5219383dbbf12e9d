package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

var (
	// ErrUnreachable is returned by Send when no peer is connected or the
	// connection dropped before a reply arrived.
	ErrUnreachable = errors.New("transport: peer unreachable")

	// ErrTimeout is returned by Send when the peer did not reply in time.
	ErrTimeout = errors.New("transport: reply timeout")
)

// Session is one side of the peer link.
//
// Implementations:
//   - Server: primary device, accepts one companion over WebSocket
//   - Client: companion device, dials the primary and reconnects
//   - PipeEnd: in-memory, see NewLink
type Session interface {
	// Reachable reports whether a peer is currently connected.
	Reachable() bool

	// Send delivers msg and waits for the peer's reply. The reply's
	// ReplyTo matches the id assigned to msg.
	//
	// Returns ErrUnreachable or ErrTimeout (possibly wrapped).
	Send(ctx context.Context, msg *Message) (*Message, error)

	// SetHandler installs the receiver of incoming requests and link
	// events. Must be called before the session starts.
	SetHandler(h Handler)
}

// Handler receives requests and link events from a Session. Callbacks run on
// transport goroutines and may be concurrent.
type Handler interface {
	// HandleMessage answers an incoming request. A nil reply sends nothing,
	// leaving the sender to time out.
	HandleMessage(ctx context.Context, msg *Message) *Message

	// ReachabilityChanged reports the peer coming and going.
	ReachabilityChanged(reachable bool)

	// SessionActivated reports a fresh session with the peer, after which
	// both sides should exchange profiles again.
	SessionActivated()
}

const (
	readLimit    = 1 << 20
	writeTimeout = 5 * time.Second
)

// peerConn multiplexes request/reply exchanges over one WebSocket.
type peerConn struct {
	conn    *websocket.Conn
	handler func() Handler
	logger  *log.Logger

	mu      sync.Mutex
	waiters map[string]chan *Message

	closed    chan struct{}
	closeOnce sync.Once
}

func newPeerConn(conn *websocket.Conn, handler func() Handler, logger *log.Logger) *peerConn {
	conn.SetReadLimit(readLimit)
	return &peerConn{
		conn:    conn,
		handler: handler,
		logger:  logger,
		waiters: make(map[string]chan *Message),
		closed:  make(chan struct{}),
	}
}

func (p *peerConn) send(ctx context.Context, msg *Message) (*Message, error) {
	out := *msg
	out.ID = uuid.NewString()

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", out.Type, err)
	}

	ch := make(chan *Message, 1)
	p.mu.Lock()
	p.waiters[out.ID] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.waiters, out.ID)
		p.mu.Unlock()
	}()

	if err := p.conn.Write(ctx, websocket.MessageText, data); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-p.closed:
		return nil, ErrUnreachable
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
}

// readLoop runs until the connection fails or ctx is done.
func (p *peerConn) readLoop(ctx context.Context) error {
	defer p.close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := p.conn.Read(ctx)
		if err != nil {
			return err
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			p.logger.Printf("WARNING: dropping frame: %v", err)
			continue
		}

		if msg.IsReply() {
			p.deliver(msg)
			continue
		}

		go p.serve(ctx, msg)
	}
}

func (p *peerConn) deliver(reply *Message) {
	p.mu.Lock()
	ch, ok := p.waiters[reply.ReplyTo]
	p.mu.Unlock()

	if !ok {
		p.logger.Printf("Ignoring late reply %s", reply.ReplyTo)
		return
	}
	select {
	case ch <- reply:
	default:
	}
}

func (p *peerConn) serve(ctx context.Context, msg *Message) {
	h := p.handler()
	if h == nil {
		return
	}

	reply := h.HandleMessage(ctx, msg)
	if reply == nil {
		return
	}
	reply.Type = ""
	reply.ID = ""
	reply.ReplyTo = msg.ID

	data, err := json.Marshal(reply)
	if err != nil {
		p.logger.Printf("Failed to encode reply to %s: %v", msg.Type, err)
		return
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := p.conn.Write(wctx, websocket.MessageText, data); err != nil {
		p.logger.Printf("Failed to send reply to %s: %v", msg.Type, err)
	}
}

func (p *peerConn) close(code websocket.StatusCode, reason string) {
	p.closeOnce.Do(func() {
		close(p.closed)
		_ = p.conn.Close(code, reason)
	})
}
