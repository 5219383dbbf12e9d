package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spellflare/spellsync/internal/cache"
	"github.com/spellflare/spellsync/internal/merge"
	"github.com/spellflare/spellsync/internal/profile"
	"github.com/spellflare/spellsync/internal/transport"
)

var quiet = log.New(io.Discard, "", 0)

// clock hands out strictly increasing timestamps, one second apart.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type device struct {
	ep    *Endpoint
	store *cache.Memory
}

func newDevice(t *testing.T, role Role, id string, session transport.Session, clk *clock) *device {
	t.Helper()

	store := cache.NewMemory(id)
	ep, err := New(store, session, &Config{
		Role:         role,
		ReplyTimeout: time.Second,
		Now:          clk.Now,
		Logger:       quiet,
	})
	require.NoError(t, err)
	t.Cleanup(ep.Stop)
	return &device{ep: ep, store: store}
}

func (d *device) seed(t *testing.T, s profile.Syncable) {
	t.Helper()
	require.NoError(t, d.store.Save(context.Background(), s))
}

func (d *device) profile(t *testing.T) profile.Syncable {
	t.Helper()
	s, err := d.store.Load(context.Background())
	require.NoError(t, err)
	return s
}

// settle waits until neither device has work in flight.
func settle(t *testing.T, devices ...*device) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for round := 0; round < 3; round++ {
		for _, d := range devices {
			require.NoError(t, d.ep.Flush(ctx))
		}
	}
}

type pair struct {
	link      *transport.Link
	primary   *device
	companion *device
	clock     *clock
}

// newPair returns started devices on an unreachable link.
func newPair(t *testing.T) *pair {
	t.Helper()
	clk := newClock()
	link := transport.NewLink()
	p := &pair{
		link:      link,
		primary:   newDevice(t, RolePrimary, "phone", link.Primary, clk),
		companion: newDevice(t, RoleCompanion, "watch", link.Companion, clk),
		clock:     clk,
	}
	return p
}

func (p *pair) start(t *testing.T) {
	t.Helper()
	require.NoError(t, p.primary.ep.Start())
	require.NoError(t, p.companion.ep.Start())
}

func (p *pair) connect(t *testing.T) {
	t.Helper()
	p.link.SetReachable(true)
	settle(t, p.primary, p.companion)
}

// synced returns a pair that has exchanged an initial profile.
func synced(t *testing.T) *pair {
	t.Helper()
	p := newPair(t)
	s := profile.Wrap(profile.New("Ada", 3), "phone", false, p.clock.Now())
	p.primary.seed(t, s)
	p.start(t)
	p.connect(t)
	require.True(t, p.companion.profile(t).Equal(s))
	return p
}

func TestInitialSync_SeedsEmptyPeer(t *testing.T) {
	tests := []struct {
		name        string
		seedPrimary bool
	}{
		{"primary seeds companion", true},
		{"companion seeds primary", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPair(t)
			prof := profile.New("Ada", 2)
			prof.CompleteLevel(1)
			prof.CompleteLevel(2)

			owner, empty := p.primary, p.companion
			if !tt.seedPrimary {
				owner, empty = p.companion, p.primary
			}
			s := profile.Wrap(prof, owner.ep.DeviceID(), false, p.clock.Now())
			owner.seed(t, s)

			p.start(t)
			p.connect(t)

			assert.True(t, empty.profile(t).Equal(s))
			assert.True(t, owner.profile(t).Equal(s))
			for _, d := range []*device{p.primary, p.companion} {
				assert.False(t, d.ep.HasPendingChanges())
				assert.Equal(t, StatusSuccess, d.ep.SyncStatus().Kind)
			}
		})
	}
}

func TestInitialSync_CompanionDefaultProfileLoses(t *testing.T) {
	clk := newClock()
	link := transport.NewLink()
	primary := newDevice(t, RolePrimary, "phone", link.Primary, clk)

	store := cache.NewMemory("watch")
	companionEp, err := New(store, link.Companion, &Config{
		Role:          RoleCompanion,
		CreateDefault: true,
		Now:           clk.Now,
		Logger:        quiet,
	})
	require.NoError(t, err)
	t.Cleanup(companionEp.Stop)
	companion := &device{ep: companionEp, store: store}

	s := profile.Wrap(profile.New("Ada", 4), "phone", false, clk.Now())
	primary.seed(t, s)

	require.NoError(t, primary.ep.Start())
	require.NoError(t, companion.ep.Start())

	def := companion.profile(t)
	assert.Equal(t, profile.DefaultName, def.Profile.Name)
	assert.Equal(t, 1, def.Profile.Grade)

	link.SetReachable(true)
	settle(t, primary, companion)

	assert.True(t, companion.profile(t).Equal(s))
	assert.True(t, primary.profile(t).Equal(s))
}

func TestConflictOnReconnect_NewerRecordWins(t *testing.T) {
	p := synced(t)
	ctx := context.Background()

	p.link.SetReachable(false)
	settle(t, p.primary, p.companion)

	_, err := p.primary.ep.CompleteLevel(ctx, 2)
	require.NoError(t, err)
	newer, err := p.companion.ep.CompleteLevel(ctx, 7)
	require.NoError(t, err)

	assert.True(t, p.primary.ep.HasPendingChanges())
	assert.True(t, p.companion.ep.HasPendingChanges())
	assert.Equal(t, Status{Kind: StatusError, Reason: "peer unreachable"}, p.companion.ep.SyncStatus())

	p.link.SetReachable(true)
	p.link.Activate()
	settle(t, p.primary, p.companion)

	// Whole-record replace: the primary's offline level 2 is gone.
	for _, d := range []*device{p.primary, p.companion} {
		got := d.profile(t)
		assert.True(t, got.Equal(newer), "%s diverged", d.ep.DeviceID())
		assert.True(t, got.Profile.IsLevelCompleted(7))
		assert.False(t, got.Profile.IsLevelCompleted(2))
		assert.False(t, d.ep.HasPendingChanges())
	}
}

func TestPendingChanges_ResentWhenReachable(t *testing.T) {
	p := synced(t)
	ctx := context.Background()

	p.link.SetReachable(false)
	settle(t, p.primary, p.companion)

	_, err := p.companion.ep.CompleteLevel(ctx, 4)
	require.NoError(t, err)
	require.True(t, p.companion.ep.HasPendingChanges())
	assert.False(t, p.primary.profile(t).Profile.IsLevelCompleted(4))

	pending, err := p.companion.store.Pending(ctx)
	require.NoError(t, err)
	assert.True(t, pending, "pending flag must be persisted")

	p.link.SetReachable(true)
	settle(t, p.primary, p.companion)

	assert.True(t, p.primary.profile(t).Profile.IsLevelCompleted(4))
	assert.False(t, p.companion.ep.HasPendingChanges())
	assert.Equal(t, StatusSuccess, p.companion.ep.SyncStatus().Kind)
}

func TestPendingChanges_SupersededAckKeepsPending(t *testing.T) {
	p := synced(t)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		calls   int
		entered = make(chan struct{})
		release = make(chan struct{})
	)
	p.link.Intercept(func(from *transport.PipeEnd, msg *transport.Message) error {
		if from != p.link.Companion {
			return nil
		}
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			close(entered)
			<-release
			return nil
		}
		return errors.New("radio off")
	})

	_, err := p.companion.ep.CompleteLevel(ctx, 5)
	require.NoError(t, err)
	<-entered

	// Mutate while the first push is still waiting for its ack.
	_, err = p.companion.ep.CompleteLevel(ctx, 6)
	require.NoError(t, err)

	close(release)
	settle(t, p.companion)

	primary := p.primary.profile(t)
	assert.True(t, primary.Profile.IsLevelCompleted(5))
	assert.False(t, primary.Profile.IsLevelCompleted(6))
	assert.True(t, p.companion.ep.HasPendingChanges(), "ack of a superseded payload must not clear pending")
	assert.Equal(t, StatusError, p.companion.ep.SyncStatus().Kind)

	p.link.Intercept(nil)
	require.NoError(t, p.companion.ep.RetryPending(ctx))
	settle(t, p.primary, p.companion)

	assert.True(t, p.primary.profile(t).Profile.IsLevelCompleted(6))
	assert.False(t, p.companion.ep.HasPendingChanges())
}

func TestUpdateGrade(t *testing.T) {
	p := synced(t)
	ctx := context.Background()

	var mu sync.Mutex
	var sent []transport.MessageType
	p.link.Intercept(func(from *transport.PipeEnd, msg *transport.Message) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, msg.Type)
		return nil
	})

	_, err := p.primary.ep.UpdateGrade(ctx, 5)
	require.NoError(t, err)
	settle(t, p.primary, p.companion)

	assert.Equal(t, 5, p.companion.profile(t).Profile.Grade)
	mu.Lock()
	assert.Equal(t, []transport.MessageType{transport.TypeGradeChanged}, sent)
	sent = nil
	mu.Unlock()

	// Companion grade changes stay local until the next push.
	_, err = p.companion.ep.UpdateGrade(ctx, 2)
	require.NoError(t, err)
	settle(t, p.primary, p.companion)

	mu.Lock()
	assert.Empty(t, sent)
	mu.Unlock()
	assert.True(t, p.companion.ep.HasPendingChanges())
	assert.Equal(t, 5, p.primary.profile(t).Profile.Grade)

	_, err = p.companion.ep.CompleteLevel(ctx, 1)
	require.NoError(t, err)
	settle(t, p.primary, p.companion)

	got := p.primary.profile(t).Profile
	assert.Equal(t, 2, got.Grade)
	assert.True(t, got.IsLevelCompleted(1))
	assert.False(t, p.companion.ep.HasPendingChanges())
}

func TestUpdateGrade_NoChangeIsNoop(t *testing.T) {
	p := synced(t)
	before := p.primary.profile(t)

	got, err := p.primary.ep.UpdateGrade(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, got.Equal(before))
	assert.False(t, p.primary.ep.HasPendingChanges())
}

func TestHandleMessage(t *testing.T) {
	clk := newClock()
	d := newDevice(t, RolePrimary, "phone", nil, clk)
	local := profile.Wrap(profile.New("Ada", 3), "phone", false, clk.Now())
	d.seed(t, local)
	require.NoError(t, d.ep.Start())
	ctx := context.Background()

	t.Run("undecodable push is discarded", func(t *testing.T) {
		reply := d.ep.HandleMessage(ctx, &transport.Message{
			Type:    transport.TypeProfileUpdated,
			Profile: json.RawMessage(`{"nope":1}`),
		})
		require.NotNil(t, reply)
		assert.Equal(t, transport.StatusRejected, reply.Status)
		assert.True(t, d.profile(t).Equal(local))
	})

	t.Run("gradeChanged is ignored by the primary", func(t *testing.T) {
		p := local.Profile.Clone()
		p.SetGrade(6)
		remote := profile.Wrap(p, "watch", false, clk.Now())
		msg, err := transport.NewRequest(transport.TypeGradeChanged, &remote)
		require.NoError(t, err)

		reply := d.ep.HandleMessage(ctx, msg)
		require.NotNil(t, reply)
		assert.Equal(t, transport.StatusReceived, reply.Status)
		assert.Equal(t, 3, d.profile(t).Profile.Grade)
	})

	t.Run("legacy updateProfile is merged", func(t *testing.T) {
		p := local.Profile.Clone()
		p.CompleteLevel(9)
		remote := profile.Wrap(p, "watch", false, clk.Now())
		body, err := remote.Encode()
		require.NoError(t, err)

		frame := []byte(`{"id":"x","action":"updateProfile","profile":` + string(body) + `}`)
		msg, err := transport.DecodeMessage(frame)
		require.NoError(t, err)

		reply := d.ep.HandleMessage(ctx, msg)
		require.NotNil(t, reply)
		assert.Equal(t, transport.StatusReceived, reply.Status)
		assert.True(t, d.profile(t).Equal(remote))
	})

	t.Run("older push keeps local", func(t *testing.T) {
		current := d.profile(t)
		stale := profile.Wrap(profile.New("Old", 1), "watch", false, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
		msg, err := transport.NewRequest(transport.TypeLevelCompleted, &stale)
		require.NoError(t, err)

		reply := d.ep.HandleMessage(ctx, msg)
		require.NotNil(t, reply)
		assert.True(t, d.profile(t).Equal(current))
	})

	t.Run("requestProfile returns the cache", func(t *testing.T) {
		reply := d.ep.HandleMessage(ctx, &transport.Message{Type: transport.TypeRequestProfile})
		require.NotNil(t, reply)
		got, _, err := reply.Syncable()
		require.NoError(t, err)
		assert.True(t, got.Equal(d.profile(t)))
	})

	t.Run("unknown type gets no reply", func(t *testing.T) {
		assert.Nil(t, d.ep.HandleMessage(ctx, &transport.Message{Type: "ping"}))
	})
}

func TestHandleMessage_RequestWithoutProfile(t *testing.T) {
	d := newDevice(t, RoleCompanion, "watch", nil, newClock())
	require.NoError(t, d.ep.Start())

	reply := d.ep.HandleMessage(context.Background(), &transport.Message{Type: transport.TypeRequestProfile})
	require.NotNil(t, reply)
	assert.True(t, reply.NoProfile)
}

func TestOfflineMutations(t *testing.T) {
	d := newDevice(t, RolePrimary, "phone", nil, newClock())
	require.NoError(t, d.ep.Start())
	ctx := context.Background()

	_, err := d.ep.CompleteLevel(ctx, 1)
	assert.ErrorIs(t, err, ErrNoProfile)

	created, err := d.ep.CreateProfile(ctx, "  Ada  ", 9)
	require.NoError(t, err)
	assert.Equal(t, "Ada", created.Profile.Name)
	assert.Equal(t, 7, created.Profile.Grade)
	assert.Equal(t, "phone", created.DeviceIdentifier)

	_, err = d.ep.CreateProfile(ctx, "Bob", 1)
	assert.ErrorIs(t, err, ErrProfileExists)

	s, err := d.ep.CompleteLevel(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Profile.CurrentLevel())
	assert.True(t, s.LastModified.After(created.LastModified))

	s, err = d.ep.AwardCoins(ctx, profile.CalculateCoins(1))
	require.NoError(t, err)
	assert.Equal(t, 70, s.Profile.TotalCoins)

	s, err = d.ep.UpdateName(ctx, "Ada L.")
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", s.Profile.Name)

	s, err = d.ep.SetWatchUnlocked(ctx, true)
	require.NoError(t, err)
	assert.True(t, s.IsWatchUnlocked)

	snap, err := d.ep.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, snap.State)
	assert.True(t, snap.HasPendingChanges)
	assert.Equal(t, "error(peer unreachable)", snap.Status.String())
	require.NotNil(t, snap.Profile)
	assert.True(t, snap.Profile.Equal(s))

	require.NoError(t, d.ep.Reset(ctx))
	_, err = d.ep.CurrentProfile(ctx)
	assert.ErrorIs(t, err, ErrNoProfile)
	assert.False(t, d.ep.HasPendingChanges())
}

func TestStart_RestoresPendingFlag(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory("phone")
	require.NoError(t, store.Save(ctx, profile.Wrap(profile.New("Ada", 1), "phone", false, time.Now())))
	require.NoError(t, store.SetPending(ctx, true))

	ep, err := New(store, nil, &Config{Role: RolePrimary, Logger: quiet})
	require.NoError(t, err)
	defer ep.Stop()
	require.NoError(t, ep.Start())

	assert.True(t, ep.HasPendingChanges())
}

func TestObservers(t *testing.T) {
	p := newPair(t)
	s := profile.Wrap(profile.New("Ada", 3), "phone", false, p.clock.Now())
	p.primary.seed(t, s)

	changes := make(chan profile.Syncable, 8)
	p.companion.ep.OnProfileChange(func(got profile.Syncable) { changes <- got })

	statuses := make(chan Status, 16)
	p.companion.ep.OnStatusChange(func(st Status) { statuses <- st })

	p.start(t)
	p.connect(t)

	select {
	case got := <-changes:
		assert.True(t, got.Equal(s))
	case <-time.After(2 * time.Second):
		t.Fatal("profile observer was not called")
	}

	require.Eventually(t, func() bool {
		for {
			select {
			case st := <-statuses:
				if st.Kind == StatusSuccess {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestObserver_MayCallBack(t *testing.T) {
	d := newDevice(t, RolePrimary, "phone", nil, newClock())
	ctx := context.Background()

	seen := make(chan int, 1)
	d.ep.OnProfileChange(func(s profile.Syncable) {
		// Observers run off the actor, so re-entering must not deadlock.
		current, err := d.ep.CurrentProfile(ctx)
		if err == nil {
			seen <- current.Profile.Grade
		}
	})
	require.NoError(t, d.ep.Start())

	_, err := d.ep.CreateProfile(ctx, "Ada", 4)
	require.NoError(t, err)

	select {
	case g := <-seen:
		assert.Equal(t, 4, g)
	case <-time.After(2 * time.Second):
		t.Fatal("observer did not run")
	}
}

func TestReconcileWith(t *testing.T) {
	p := synced(t)
	ctx := context.Background()

	local := p.primary.profile(t)
	richer := local.Profile.Clone()
	for _, lvl := range []int{1, 2, 3} {
		richer.CompleteLevel(lvl)
	}
	// Older but with more progress: the cloud policy prefers it.
	cloudCopy := profile.Wrap(richer, "phone-old", false, local.LastModified.Add(-time.Hour))

	d, err := p.primary.ep.ReconcileWith(ctx, cloudCopy, merge.ExplainResolveConflict)
	require.NoError(t, err)
	assert.Equal(t, merge.SideRemote, d.Side)
	assert.Equal(t, merge.RuleLevels, d.Rule)
	settle(t, p.primary, p.companion)

	assert.True(t, p.primary.profile(t).Equal(cloudCopy))

	// The cloud record is older than the companion's copy, so
	// last-writer-wins on the companion keeps its own.
	assert.True(t, p.companion.profile(t).Equal(local))

	d, err = p.primary.ep.ReconcileWith(ctx, local, merge.ExplainResolveConflict)
	require.NoError(t, err)
	assert.Equal(t, merge.SideLocal, d.Side)
}

func TestReconcileWith_NoLocalProfile(t *testing.T) {
	d := newDevice(t, RolePrimary, "phone", nil, newClock())
	require.NoError(t, d.ep.Start())

	remote := profile.Wrap(profile.New("Ada", 2), "phone", false, time.Now())
	dec, err := d.ep.ReconcileWith(context.Background(), remote, merge.ExplainResolveConflict)
	require.NoError(t, err)
	assert.Equal(t, merge.RuleAbsent, dec.Rule)
	assert.True(t, d.profile(t).Equal(remote))
}

func TestStopped(t *testing.T) {
	d := newDevice(t, RolePrimary, "phone", nil, newClock())
	require.NoError(t, d.ep.Start())
	d.ep.Stop()

	_, err := d.ep.CreateProfile(context.Background(), "Ada", 1)
	assert.ErrorIs(t, err, ErrStopped)
}

// ackSession is an always-reachable peer that answers every push with a
// fixed status.
type ackSession struct {
	mu     sync.Mutex
	status string
	pushes int

	// When set, pushes signal entered and wait for release.
	entered chan struct{}
	release chan struct{}
}

func (s *ackSession) Reachable() bool             { return true }
func (s *ackSession) SetHandler(transport.Handler) {}

func (s *ackSession) Send(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	if msg.Type == transport.TypeRequestProfile {
		return transport.NoProfileReply(), nil
	}
	if s.release != nil {
		s.entered <- struct{}{}
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes++
	return &transport.Message{Status: s.status}, nil
}

func (s *ackSession) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func TestPendingChanges_RejectedPushStaysPending(t *testing.T) {
	ctx := context.Background()
	session := &ackSession{status: transport.StatusRejected}
	d := newDevice(t, RoleCompanion, "watch", session, newClock())
	d.seed(t, profile.Wrap(profile.New("Ada", 1), "watch", false, time.Now()))
	require.NoError(t, d.ep.Start())
	require.NoError(t, d.ep.Flush(ctx))

	_, err := d.ep.CompleteLevel(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, d.ep.Flush(ctx))

	assert.True(t, d.ep.HasPendingChanges(), "a rejected push must not clear pending")
	st := d.ep.SyncStatus()
	assert.Equal(t, StatusError, st.Kind)
	assert.Contains(t, st.Reason, "rejected")

	pending, err := d.store.Pending(ctx)
	require.NoError(t, err)
	assert.True(t, pending)

	session.setStatus(transport.StatusReceived)
	require.NoError(t, d.ep.RetryPending(ctx))
	require.NoError(t, d.ep.Flush(ctx))

	assert.False(t, d.ep.HasPendingChanges())
	assert.Equal(t, StatusSuccess, d.ep.SyncStatus().Kind)
}

func TestRefresh_NotifiesOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	d := newDevice(t, RolePrimary, "phone", nil, newClock())
	d.seed(t, profile.Wrap(profile.New("Ada", 1), "phone", false, time.Now()))

	changes := make(chan profile.Syncable, 8)
	d.ep.OnProfileChange(func(s profile.Syncable) { changes <- s })
	require.NoError(t, d.ep.Start())

	for i := 0; i < 3; i++ {
		require.NoError(t, d.ep.Refresh(ctx))
	}

	// Another process writes the cache.
	other := profile.New("Ada", 1)
	other.CompleteLevel(1)
	written := profile.Wrap(other, "phone", false, time.Now().Add(time.Minute))
	d.seed(t, written)
	require.NoError(t, d.ep.Refresh(ctx))
	require.NoError(t, d.ep.Refresh(ctx))

	select {
	case got := <-changes:
		assert.True(t, got.Equal(written), "first notification must be the external write")
	case <-time.After(2 * time.Second):
		t.Fatal("observer was not called for the external write")
	}
	select {
	case got := <-changes:
		t.Fatalf("unexpected notification for %s", got.Profile.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRefresh_KeepsInFlightAckValid(t *testing.T) {
	ctx := context.Background()
	session := &ackSession{
		status:  transport.StatusReceived,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	d := newDevice(t, RoleCompanion, "watch", session, newClock())
	require.NoError(t, d.ep.Start())
	require.NoError(t, d.ep.Flush(ctx))

	_, err := d.ep.CreateProfile(ctx, "Ada", 1)
	require.NoError(t, err)
	<-session.entered

	// Periodic refreshes while the push waits for its ack.
	require.NoError(t, d.ep.Refresh(ctx))
	require.NoError(t, d.ep.Refresh(ctx))

	close(session.release)
	require.NoError(t, d.ep.Flush(ctx))

	assert.False(t, d.ep.HasPendingChanges(), "an unchanged cache must not supersede the in-flight push")
	assert.Equal(t, StatusSuccess, d.ep.SyncStatus().Kind)
}
