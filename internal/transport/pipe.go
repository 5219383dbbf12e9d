package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Link connects two in-memory sessions. Messages are JSON-encoded on the
// way through so that both sides see exactly what a network peer would.
type Link struct {
	Primary   *PipeEnd
	Companion *PipeEnd

	mu        sync.Mutex
	reachable bool
	intercept func(from *PipeEnd, msg *Message) error
}

// PipeEnd is one side of a Link.
type PipeEnd struct {
	link *Link
	name string

	mu      sync.RWMutex
	handler Handler
}

var _ Session = (*PipeEnd)(nil)

// NewLink returns an unreachable link.
func NewLink() *Link {
	l := &Link{}
	l.Primary = &PipeEnd{link: l, name: "primary"}
	l.Companion = &PipeEnd{link: l, name: "companion"}
	return l
}

// SetReachable changes reachability and notifies both handlers.
func (l *Link) SetReachable(reachable bool) {
	l.mu.Lock()
	changed := l.reachable != reachable
	l.reachable = reachable
	l.mu.Unlock()

	if !changed {
		return
	}
	for _, end := range []*PipeEnd{l.Primary, l.Companion} {
		if h := end.currentHandler(); h != nil {
			h.ReachabilityChanged(reachable)
		}
	}
}

// Activate reports a fresh session to both handlers.
func (l *Link) Activate() {
	for _, end := range []*PipeEnd{l.Primary, l.Companion} {
		if h := end.currentHandler(); h != nil {
			h.SessionActivated()
		}
	}
}

// Intercept installs fn, called before every delivery. Returning an error
// fails the send with that error; blocking delays it.
func (l *Link) Intercept(fn func(from *PipeEnd, msg *Message) error) {
	l.mu.Lock()
	l.intercept = fn
	l.mu.Unlock()
}

func (l *Link) isReachable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reachable
}

// Name returns "primary" or "companion".
func (p *PipeEnd) Name() string {
	return p.name
}

// SetHandler implements Session.
func (p *PipeEnd) SetHandler(h Handler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

func (p *PipeEnd) currentHandler() Handler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.handler
}

func (p *PipeEnd) peer() *PipeEnd {
	if p == p.link.Primary {
		return p.link.Companion
	}
	return p.link.Primary
}

// Reachable implements Session.
func (p *PipeEnd) Reachable() bool {
	return p.link.isReachable()
}

// Send implements Session.
func (p *PipeEnd) Send(ctx context.Context, msg *Message) (*Message, error) {
	if !p.link.isReachable() {
		return nil, ErrUnreachable
	}

	p.link.mu.Lock()
	intercept := p.link.intercept
	p.link.mu.Unlock()
	if intercept != nil {
		if err := intercept(p, msg); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	h := p.peer().currentHandler()
	if h == nil || !p.link.isReachable() {
		return nil, ErrUnreachable
	}

	in, err := roundTrip(msg)
	if err != nil {
		return nil, err
	}
	in.ID = "pipe"

	reply := h.HandleMessage(ctx, in)
	if reply == nil {
		return nil, ErrTimeout
	}
	reply.ReplyTo = in.ID
	return roundTrip(reply)
}

func roundTrip(msg *Message) (*Message, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return DecodeMessage(data)
}
