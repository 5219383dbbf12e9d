package endpoint

import (
	"context"
	"errors"

	"github.com/spellflare/spellsync/internal/merge"
	"github.com/spellflare/spellsync/internal/metrics"
	"github.com/spellflare/spellsync/internal/profile"
	"github.com/spellflare/spellsync/internal/transport"
)

// mutate loads the cached profile, applies fn, persists the result and
// schedules a push of type msgType. fn returns false to signal a no-op.
// With push false the change is only marked pending and travels with the
// next push.
func (e *Endpoint) mutate(ctx context.Context, msgType transport.MessageType, push bool, fn func(p *profile.Profile) bool) (profile.Syncable, error) {
	var out profile.Syncable
	var err error
	derr := e.do(ctx, func() {
		current, lerr := e.load()
		if lerr != nil {
			err = lerr
			return
		}

		p := current.Profile.Clone()
		if !fn(&p) {
			out = current
			return
		}

		out = current.WithProfile(p, e.deviceID, e.cfg.Now())
		err = e.commit(out, msgType, push)
	})
	if derr != nil {
		return profile.Syncable{}, derr
	}
	return out, err
}

// commit persists a local change, marks it pending and queues the push.
func (e *Endpoint) commit(s profile.Syncable, msgType transport.MessageType, push bool) error {
	if err := e.save(s); err != nil {
		return err
	}
	e.seq++
	e.setPending(true)

	if !push {
		return nil
	}
	e.pushType = msgType
	e.wantPush = true
	if !e.reachable() {
		e.logger.Printf("Peer unreachable, keeping %s pending", msgType)
		e.metrics.MessageSent(string(msgType), metrics.ResultUnreachable)
		e.setStatus(Status{Kind: StatusError, Reason: "peer unreachable"})
		return nil
	}
	e.pump()
	return nil
}

// CompleteLevel records level as completed in the active grade.
func (e *Endpoint) CompleteLevel(ctx context.Context, level int) (profile.Syncable, error) {
	return e.mutate(ctx, transport.TypeLevelCompleted, true, func(p *profile.Profile) bool {
		p.CompleteLevel(level)
		return true
	})
}

// UpdateGrade switches the active grade. The primary pushes gradeChanged;
// on the companion the change is kept local and rides along with the next
// push.
func (e *Endpoint) UpdateGrade(ctx context.Context, grade int) (profile.Syncable, error) {
	push := e.cfg.Role == RolePrimary
	return e.mutate(ctx, transport.TypeGradeChanged, push, func(p *profile.Profile) bool {
		before := p.Grade
		p.SetGrade(grade)
		return p.Grade != before
	})
}

// AwardCoins adds amount to the balance. Non-positive amounts are ignored.
func (e *Endpoint) AwardCoins(ctx context.Context, amount int) (profile.Syncable, error) {
	return e.mutate(ctx, transport.TypeProfileUpdated, true, func(p *profile.Profile) bool {
		before := p.TotalCoins
		p.AwardCoins(amount)
		return p.TotalCoins != before
	})
}

// UpdateName renames the learner. Blank names are ignored.
func (e *Endpoint) UpdateName(ctx context.Context, name string) (profile.Syncable, error) {
	return e.mutate(ctx, transport.TypeProfileUpdated, true, func(p *profile.Profile) bool {
		return p.Rename(name)
	})
}

// CreateProfile runs onboarding: it creates and pushes a fresh profile.
func (e *Endpoint) CreateProfile(ctx context.Context, name string, grade int) (profile.Syncable, error) {
	var out profile.Syncable
	var err error
	derr := e.do(ctx, func() {
		_, lerr := e.load()
		switch {
		case lerr == nil:
			err = ErrProfileExists
			return
		case !errors.Is(lerr, ErrNoProfile):
			err = lerr
			return
		}

		out = profile.Wrap(profile.New(name, grade), e.deviceID, false, e.cfg.Now())
		err = e.commit(out, transport.TypeProfileUpdated, true)
	})
	if derr != nil {
		return profile.Syncable{}, derr
	}
	return out, err
}

// SetWatchUnlocked mirrors the companion entitlement into the profile.
func (e *Endpoint) SetWatchUnlocked(ctx context.Context, unlocked bool) (profile.Syncable, error) {
	var out profile.Syncable
	var err error
	derr := e.do(ctx, func() {
		current, lerr := e.load()
		if lerr != nil {
			err = lerr
			return
		}
		if current.IsWatchUnlocked == unlocked {
			out = current
			return
		}

		out = current.WithWatchUnlocked(unlocked, e.deviceID, e.cfg.Now())
		err = e.commit(out, transport.TypeProfileUpdated, true)
	})
	if derr != nil {
		return profile.Syncable{}, derr
	}
	return out, err
}

// CurrentProfile returns the cached profile, or ErrNoProfile.
func (e *Endpoint) CurrentProfile(ctx context.Context) (profile.Syncable, error) {
	var out profile.Syncable
	var err error
	if derr := e.do(ctx, func() { out, err = e.load() }); derr != nil {
		return profile.Syncable{}, derr
	}
	return out, err
}

// Reset destroys the local copy and clears pending changes. The cloud copy
// is handled by cloud.Bridge.DeleteBackup.
func (e *Endpoint) Reset(ctx context.Context) error {
	var err error
	derr := e.do(ctx, func() {
		if cerr := e.store.Clear(e.ctx); cerr != nil {
			err = cerr
			return
		}
		e.seq++
		e.remember(nil)
		e.pending = false
		e.wantPush = false
		e.metrics.SetPending(false)
		e.setStatus(Status{Kind: StatusIdle})
		e.logger.Printf("Local profile reset")
	})
	if derr != nil {
		return derr
	}
	return err
}

// Refresh re-reads the cache after another process changed it. Observers
// are notified only when the stored profile differs from the last one this
// endpoint saw. Pending work is retried.
func (e *Endpoint) Refresh(ctx context.Context) error {
	return e.do(ctx, func() {
		changed := false
		s, lerr := e.load()
		switch {
		case lerr == nil:
			if e.known == nil || !e.known.Equal(s) {
				changed = true
				e.remember(&s)
				e.notifyProfile(s)
			}
		case errors.Is(lerr, ErrNoProfile):
			if e.known != nil {
				changed = true
				e.remember(nil)
			}
		default:
			e.logger.Printf("WARNING: failed to reload profile: %v", lerr)
		}

		pending, err := e.store.Pending(e.ctx)
		if err != nil {
			e.logger.Printf("WARNING: failed to read pending flag: %v", err)
		} else {
			// Another writer replaced the payload of any send still in
			// flight, so its ack must not clear the flag.
			if changed || (pending && !e.pending) {
				e.seq++
			}
			e.pending = pending
			e.metrics.SetPending(pending)
		}
		e.retry()
	})
}

// RetryPending resends pending changes, or the initial profile request if
// it never succeeded, when the peer is reachable.
func (e *Endpoint) RetryPending(ctx context.Context) error {
	return e.do(ctx, e.retry)
}

func (e *Endpoint) retry() {
	if !e.reachable() {
		return
	}
	if e.needsRequest && !e.requesting {
		e.wantRequest = true
	} else if e.pending {
		e.wantPush = true
	}
	e.pump()
}

// ReconcileWith merges remote into the local cache using explain. When the
// remote record wins it is persisted, marked pending and pushed to the
// peer. With no local profile, remote is adopted outright.
//
// The returned decision names the side that won; merge.RuleAbsent means
// there was no local profile.
func (e *Endpoint) ReconcileWith(ctx context.Context, remote profile.Syncable, explain merge.Explainer) (merge.Decision, error) {
	var d merge.Decision
	var err error
	derr := e.do(ctx, func() {
		local, lerr := e.load()
		switch {
		case errors.Is(lerr, ErrNoProfile):
			d = merge.Decision{Winner: remote, Side: merge.SideRemote, Rule: merge.RuleAbsent}
		case lerr != nil:
			err = lerr
			return
		default:
			d = explain(local, remote)
			if d.Side == merge.SideLocal || d.Winner.Equal(local) {
				return
			}
		}

		err = e.commit(d.Winner, transport.TypeProfileUpdated, true)
	})
	if derr != nil {
		return merge.Decision{}, derr
	}
	return d, err
}
