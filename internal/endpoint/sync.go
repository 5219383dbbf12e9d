package endpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/spellflare/spellsync/internal/merge"
	"github.com/spellflare/spellsync/internal/metrics"
	"github.com/spellflare/spellsync/internal/profile"
	"github.com/spellflare/spellsync/internal/transport"
)

var _ transport.Handler = (*Endpoint)(nil)

// HandleMessage implements transport.Handler.
func (e *Endpoint) HandleMessage(ctx context.Context, msg *transport.Message) *transport.Message {
	e.metrics.MessageReceived(string(msg.Type))

	var reply *transport.Message
	if err := e.do(ctx, func() { reply = e.handle(msg) }); err != nil {
		return nil
	}
	return reply
}

// ReachabilityChanged implements transport.Handler.
func (e *Endpoint) ReachabilityChanged(reachable bool) {
	e.post(func() { e.onReachability(reachable) })
}

// SessionActivated implements transport.Handler.
func (e *Endpoint) SessionActivated() {
	e.post(func() {
		e.needsRequest = true
		if e.reachable() {
			e.onReachability(true)
		}
	})
}

func (e *Endpoint) onReachability(reachable bool) {
	if !reachable {
		e.logger.Printf("Peer unreachable")
		return
	}

	switch {
	case e.needsRequest:
		if !e.requesting {
			e.wantRequest = true
		}
	case e.pending:
		e.logger.Printf("Peer reachable, resending pending changes")
		e.wantPush = true
	}
	e.pump()
}

// handle answers one incoming request on the actor.
func (e *Endpoint) handle(msg *transport.Message) *transport.Message {
	switch msg.Type {
	case transport.TypeRequestProfile:
		local, err := e.load()
		if errors.Is(err, ErrNoProfile) {
			return transport.NoProfileReply()
		}
		if err != nil {
			e.logger.Printf("WARNING: cannot answer profile request: %v", err)
			return nil
		}
		reply, err := transport.ProfileReply(local)
		if err != nil {
			e.logger.Printf("WARNING: cannot answer profile request: %v", err)
			return nil
		}
		return reply

	case transport.TypeProfileUpdated, transport.TypeLevelCompleted, transport.TypeGradeChanged:
		if msg.Type == transport.TypeGradeChanged && e.cfg.Role == RolePrimary {
			e.logger.Printf("Ignoring gradeChanged from companion")
			return transport.Ack()
		}

		remote, report, err := msg.Syncable()
		if err != nil {
			e.logger.Printf("WARNING: discarding undecodable %s: %v", msg.Type, err)
			return &transport.Message{Status: transport.StatusRejected}
		}
		if report.Granted {
			e.logger.Printf("Peer sent pre-coin profile, granted %d coins", report.CoinsGranted)
		}

		e.reconcilePeer(remote, false)
		return transport.Ack()
	}

	e.logger.Printf("Ignoring unknown message type %q", msg.Type)
	return nil
}

// reconcilePeer applies last-writer-wins between the cached profile and
// one received from the peer. With pushOnward, a local win that differs
// from remote is pushed back so the peer converges.
func (e *Endpoint) reconcilePeer(remote profile.Syncable, pushOnward bool) {
	local, err := e.load()
	if errors.Is(err, ErrNoProfile) {
		e.adopt(remote, merge.RuleAbsent)
		return
	}
	if err != nil {
		e.logger.Printf("WARNING: keeping peer profile unmerged: %v", err)
		return
	}

	d := merge.ExplainLWW(local, remote)
	e.metrics.Merge("lww", string(d.Side))

	switch {
	case d.Side == merge.SideRemote && !d.Winner.Equal(local):
		e.adopt(d.Winner, d.Rule)
	case local.Equal(remote):
		if e.pending && !e.inFlight {
			e.setPending(false)
		}
	case pushOnward:
		e.logger.Printf("Local profile is newer (%s), pushing to peer", d.Rule)
		e.wantPush = true
	}
}

// adopt replaces the cache with the peer's record. Local changes that had
// not reached the peer are superseded.
func (e *Endpoint) adopt(s profile.Syncable, rule merge.Rule) {
	if err := e.save(s); err != nil {
		e.logger.Printf("WARNING: failed to adopt peer profile: %v", err)
		return
	}
	e.seq++
	if e.pending {
		e.setPending(false)
	}
	e.logger.Printf("Adopted peer profile from %s (%s)", s.DeviceIdentifier, rule)
}

// pump starts the next queued send if none is in flight.
func (e *Endpoint) pump() {
	if e.inFlight || !e.reachable() {
		return
	}

	switch {
	case e.wantRequest:
		e.wantRequest = false
		e.sendRequest()
	case e.wantPush:
		e.wantPush = false
		e.sendPush()
	}
}

func (e *Endpoint) sendRequest() {
	msg := &transport.Message{Type: transport.TypeRequestProfile}
	e.requesting = true
	e.start(msg, func(reply *transport.Message, err error) {
		e.requesting = false
		e.onRequestResult(reply, err)
	})
}

func (e *Endpoint) sendPush() {
	local, err := e.load()
	if err != nil {
		if !errors.Is(err, ErrNoProfile) {
			e.logger.Printf("WARNING: nothing to push: %v", err)
		}
		return
	}

	msgType := e.pushType
	e.pushType = transport.TypeProfileUpdated

	msg, err := transport.NewRequest(msgType, &local)
	if err != nil {
		e.logger.Printf("WARNING: failed to encode %s: %v", msgType, err)
		return
	}

	seq := e.seq
	e.start(msg, func(reply *transport.Message, err error) {
		e.onPushResult(msgType, seq, reply, err)
	})
}

// start sends msg on its own goroutine and posts done back to the actor.
func (e *Endpoint) start(msg *transport.Message, done func(*transport.Message, error)) {
	e.inFlight = true
	e.setStatus(Status{Kind: StatusSyncing})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithTimeout(e.ctx, e.cfg.ReplyTimeout)
		reply, err := e.session.Send(ctx, msg)
		cancel()

		e.post(func() {
			e.inFlight = false
			done(reply, err)
			e.pump()
		})
	}()
}

func (e *Endpoint) sendFailed(msgType transport.MessageType, err error) {
	result := metrics.ResultError
	if errors.Is(err, transport.ErrUnreachable) {
		result = metrics.ResultUnreachable
	}
	e.metrics.MessageSent(string(msgType), result)
	e.logger.Printf("Failed to send %s: %v", msgType, err)
	e.setStatus(Status{Kind: StatusError, Reason: err.Error()})
}

func (e *Endpoint) succeeded(msgType transport.MessageType) {
	e.metrics.MessageSent(string(msgType), metrics.ResultOK)
	e.lastSync = e.cfg.Now()
	e.setStatus(Status{Kind: StatusSuccess})
}

func (e *Endpoint) onPushResult(msgType transport.MessageType, seq uint64, reply *transport.Message, err error) {
	if err != nil {
		e.sendFailed(msgType, err)
		return
	}

	// Only a received ack means the peer applied the profile.
	if reply == nil || reply.Status != transport.StatusReceived {
		status := ""
		if reply != nil {
			status = reply.Status
		}
		e.sendFailed(msgType, fmt.Errorf("peer rejected %s (status %q)", msgType, status))
		return
	}
	e.succeeded(msgType)

	if seq != e.seq {
		e.logger.Printf("Acknowledged %s was superseded, keeping changes pending", msgType)
		if e.pending {
			e.wantPush = true
		}
		return
	}
	if e.pending {
		e.setPending(false)
	}
}

func (e *Endpoint) onRequestResult(reply *transport.Message, err error) {
	if err != nil {
		e.sendFailed(transport.TypeRequestProfile, err)
		return
	}

	e.needsRequest = false
	e.wantRequest = false
	e.succeeded(transport.TypeRequestProfile)

	switch {
	case reply.NoProfile:
		if _, lerr := e.load(); lerr == nil {
			e.logger.Printf("Peer has no profile, seeding it")
			e.wantPush = true
		}

	case reply.HasProfile():
		remote, _, derr := reply.Syncable()
		if derr != nil {
			e.logger.Printf("WARNING: discarding undecodable profile reply: %v", derr)
			return
		}
		e.reconcilePeer(remote, true)

	default:
		e.logger.Printf("WARNING: unexpected reply to requestProfile")
	}

	// Changes made before the request still need to reach the peer.
	if e.pending {
		e.wantPush = true
	}
}
