package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/spellflare/spellsync/internal/cache"
	"github.com/spellflare/spellsync/internal/metrics"
	"github.com/spellflare/spellsync/internal/profile"
	"github.com/spellflare/spellsync/internal/transport"
)

var (
	// ErrNoProfile is returned by mutations when no profile exists yet.
	ErrNoProfile = errors.New("endpoint: no profile")

	// ErrProfileExists is returned by CreateProfile when a profile exists.
	ErrProfileExists = errors.New("endpoint: profile already exists")

	// ErrStopped is returned by operations issued after Stop.
	ErrStopped = errors.New("endpoint: stopped")
)

// Role distinguishes the two devices.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleCompanion Role = "companion"
)

// ParseRole accepts "primary" or "companion".
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePrimary, RoleCompanion:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q (want primary or companion)", s)
}

// State is the connection state of an endpoint.
type State int

const (
	StateDisconnected State = iota
	StateReachable
	StateSyncing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateReachable:
		return "reachable"
	case StateSyncing:
		return "syncing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StatusKind is the coarse sync status shown to the user.
type StatusKind string

const (
	StatusIdle    StatusKind = "idle"
	StatusSyncing StatusKind = "syncing"
	StatusSuccess StatusKind = "success"
	StatusError   StatusKind = "error"
)

// Status is the last sync outcome. Reason is set for StatusError.
type Status struct {
	Kind   StatusKind
	Reason string
}

func (s Status) String() string {
	if s.Kind == StatusError && s.Reason != "" {
		return fmt.Sprintf("error(%s)", s.Reason)
	}
	return string(s.Kind)
}

// Snapshot is a point-in-time view of an endpoint.
type Snapshot struct {
	Role              Role
	DeviceID          string
	State             State
	Status            Status
	Reachable         bool
	HasPendingChanges bool
	LastSync          time.Time

	// Profile is nil when nothing is cached.
	Profile *profile.Syncable
}

// Config holds endpoint configuration.
type Config struct {
	Role Role

	// DeviceID attributes local mutations. Defaults to the store's
	// persisted identifier.
	DeviceID string

	// ReplyTimeout bounds every send (default: 10s).
	ReplyTimeout time.Duration

	// CreateDefault creates a "Player", grade 1 profile at start when the
	// cache is empty. Used by a companion that may run before ever meeting
	// its primary.
	CreateDefault bool

	// Now is the clock (default: time.Now).
	Now func() time.Time

	// Metrics may be nil.
	Metrics *metrics.Metrics

	// Logger (default: stderr logger with "[endpoint] " prefix)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults for role.
func DefaultConfig(role Role) *Config {
	return &Config{
		Role:         role,
		ReplyTimeout: 10 * time.Second,
		Now:          time.Now,
	}
}

// defaultProfileTime stamps the standalone default profile so that any
// profile that was actually played wins against it under LWW.
var defaultProfileTime = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// Endpoint is one device's sync participant. Create with New, then Start.
type Endpoint struct {
	cfg     Config
	store   cache.Store
	session transport.Session
	logger  *log.Logger
	metrics *metrics.Metrics

	deviceID string

	ops     chan func()
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	wg      sync.WaitGroup // in-flight sends

	// Actor-owned state. Only touched from the actor goroutine.
	state        State
	status       Status
	pending      bool
	seq          uint64
	lastSync     time.Time
	needsRequest bool
	inFlight     bool
	requesting   bool
	wantRequest  bool
	wantPush     bool
	pushType     transport.MessageType
	idleWaiters  []chan struct{}

	// known is the cached profile as this endpoint last wrote or saw it.
	known *profile.Syncable

	// Mirror of actor state for non-blocking readers.
	mirrorMu sync.RWMutex
	mirror   Snapshot

	obsMu           sync.Mutex
	profileObserver []func(profile.Syncable)
	statusObserver  []func(Status)

	notifyMu  sync.Mutex
	notifyQ   []func()
	notifySig chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
}

// New creates an endpoint over store. session may be nil for an offline
// device; every push then leaves the change pending.
//
// New installs the endpoint as the session's handler.
func New(store cache.Store, session transport.Session, cfg *Config) (*Endpoint, error) {
	if cfg == nil {
		cfg = DefaultConfig(RolePrimary)
	}
	c := *cfg
	if c.Role == "" {
		c.Role = RolePrimary
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = DefaultConfig(c.Role).ReplyTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.New(os.Stderr, "[endpoint] ", log.LstdFlags)
	}

	deviceID := c.DeviceID
	if deviceID == "" {
		id, err := store.DeviceID(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to resolve device id: %w", err)
		}
		deviceID = id
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Endpoint{
		cfg:          c,
		store:        store,
		session:      session,
		logger:       c.Logger,
		metrics:      c.Metrics,
		deviceID:     deviceID,
		ops:          make(chan func(), 64),
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
		status:       Status{Kind: StatusIdle},
		needsRequest: true,
		pushType:     transport.TypeProfileUpdated,
		notifySig:    make(chan struct{}, 1),
	}
	e.mirror = Snapshot{Role: c.Role, DeviceID: deviceID, Status: e.status}

	if session != nil {
		session.SetHandler(e)
	}
	return e, nil
}

// Role returns the configured role.
func (e *Endpoint) Role() Role {
	return e.cfg.Role
}

// DeviceID returns the identifier stamped on local mutations.
func (e *Endpoint) DeviceID() string {
	return e.deviceID
}

// OnProfileChange registers fn to be called with every new cached profile.
func (e *Endpoint) OnProfileChange(fn func(profile.Syncable)) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.profileObserver = append(e.profileObserver, fn)
}

// OnStatusChange registers fn to be called on every status transition.
func (e *Endpoint) OnStatusChange(fn func(Status)) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.statusObserver = append(e.statusObserver, fn)
}

// Start launches the actor. It restores the pending flag from the store
// and, when configured, creates the standalone default profile.
func (e *Endpoint) Start() error {
	var err error
	e.startOnce.Do(func() {
		pending, perr := e.store.Pending(e.ctx)
		if perr != nil {
			err = fmt.Errorf("failed to read pending flag: %w", perr)
			return
		}
		e.pending = pending
		e.metrics.SetPending(pending)

		e.started = true
		go e.run()
		go e.notifyLoop()

		err = e.do(e.ctx, func() {
			if s, lerr := e.load(); lerr == nil {
				e.remember(&s)
			}
			if e.cfg.CreateDefault {
				e.ensureDefaultProfile()
			}
			if e.pending {
				e.logger.Printf("Resuming with pending changes")
			}
			if e.session != nil && e.session.Reachable() {
				e.onReachability(true)
			}
		})
	})
	return err
}

// Stop shuts down the actor and waits for in-flight sends to finish.
func (e *Endpoint) Stop() {
	e.stopOnce.Do(func() {
		e.cancel()
		if !e.started {
			return
		}
		<-e.stopped
		e.wg.Wait()
	})
}

// Run starts the endpoint, blocks until ctx is done, then stops it.
func (e *Endpoint) Run(ctx context.Context) error {
	if err := e.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	e.Stop()
	return nil
}

func (e *Endpoint) run() {
	defer close(e.stopped)
	for {
		select {
		case <-e.ctx.Done():
			e.releaseIdle()
			return
		case op := <-e.ops:
			op()
			e.publish()
			if e.idle() {
				e.releaseIdle()
			}
		}
	}
}

// do runs fn on the actor and waits for it.
func (e *Endpoint) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case e.ops <- func() { fn(); e.publish(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
}

// post queues fn on the actor without waiting for it to run.
func (e *Endpoint) post(fn func()) {
	select {
	case e.ops <- fn:
	case <-e.ctx.Done():
	}
}

// emit queues an observer notification. Never blocks the actor.
func (e *Endpoint) emit(fn func()) {
	e.notifyMu.Lock()
	e.notifyQ = append(e.notifyQ, fn)
	e.notifyMu.Unlock()

	select {
	case e.notifySig <- struct{}{}:
	default:
	}
}

func (e *Endpoint) notifyLoop() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.notifySig:
		}

		e.notifyMu.Lock()
		queue := e.notifyQ
		e.notifyQ = nil
		e.notifyMu.Unlock()

		for _, fn := range queue {
			fn()
		}
	}
}

func (e *Endpoint) notifyProfile(s profile.Syncable) {
	e.obsMu.Lock()
	observers := append([]func(profile.Syncable){}, e.profileObserver...)
	e.obsMu.Unlock()
	if len(observers) == 0 {
		return
	}

	s = s.Clone()
	e.emit(func() {
		for _, fn := range observers {
			fn(s.Clone())
		}
	})
}

func (e *Endpoint) setStatus(st Status) {
	if st == e.status {
		return
	}
	e.status = st

	e.obsMu.Lock()
	observers := append([]func(Status){}, e.statusObserver...)
	e.obsMu.Unlock()
	if len(observers) == 0 {
		return
	}
	e.emit(func() {
		for _, fn := range observers {
			fn(st)
		}
	})
}

func (e *Endpoint) reachable() bool {
	return e.session != nil && e.session.Reachable()
}

// publish refreshes the mirror after every actor step.
func (e *Endpoint) publish() {
	switch {
	case e.inFlight:
		e.state = StateSyncing
	case e.reachable():
		e.state = StateReachable
	default:
		e.state = StateDisconnected
	}

	e.mirrorMu.Lock()
	e.mirror.State = e.state
	e.mirror.Status = e.status
	e.mirror.Reachable = e.reachable()
	e.mirror.HasPendingChanges = e.pending
	e.mirror.LastSync = e.lastSync
	e.mirrorMu.Unlock()
}

// SyncStatus returns the latest status without waiting on the actor.
func (e *Endpoint) SyncStatus() Status {
	e.mirrorMu.RLock()
	defer e.mirrorMu.RUnlock()
	return e.mirror.Status
}

// HasPendingChanges reports whether local changes await acknowledgement.
func (e *Endpoint) HasPendingChanges() bool {
	e.mirrorMu.RLock()
	defer e.mirrorMu.RUnlock()
	return e.mirror.HasPendingChanges
}

// Snapshot returns the current state together with the cached profile.
func (e *Endpoint) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	var err error
	derr := e.do(ctx, func() {
		e.publish()
		e.mirrorMu.RLock()
		snap = e.mirror
		e.mirrorMu.RUnlock()

		s, lerr := e.load()
		switch {
		case lerr == nil:
			snap.Profile = &s
		case !errors.Is(lerr, ErrNoProfile):
			err = lerr
		}
	})
	if derr != nil {
		return Snapshot{}, derr
	}
	return snap, err
}

// Flush waits until no send is in flight or queued.
func (e *Endpoint) Flush(ctx context.Context) error {
	ch := make(chan struct{})
	if err := e.do(ctx, func() {
		if e.idle() {
			close(ch)
			return
		}
		e.idleWaiters = append(e.idleWaiters, ch)
	}); err != nil {
		return err
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Endpoint) idle() bool {
	return !e.inFlight && !(e.reachable() && (e.wantPush || e.wantRequest))
}

func (e *Endpoint) releaseIdle() {
	for _, ch := range e.idleWaiters {
		close(ch)
	}
	e.idleWaiters = nil
}

// load reads the cache. Corrupt payloads count as no profile.
func (e *Endpoint) load() (profile.Syncable, error) {
	s, err := e.store.Load(e.ctx)
	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, cache.ErrNotFound), errors.Is(err, cache.ErrCorrupt):
		return profile.Syncable{}, ErrNoProfile
	}
	return profile.Syncable{}, fmt.Errorf("failed to load profile: %w", err)
}

func (e *Endpoint) save(s profile.Syncable) error {
	if err := e.store.Save(e.ctx, s); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	e.remember(&s)
	e.notifyProfile(s)
	return nil
}

func (e *Endpoint) remember(s *profile.Syncable) {
	if s == nil {
		e.known = nil
		return
	}
	c := s.Clone()
	e.known = &c
}

func (e *Endpoint) setPending(pending bool) {
	if err := e.store.SetPending(e.ctx, pending); err != nil {
		e.logger.Printf("WARNING: failed to persist pending flag: %v", err)
	}
	e.pending = pending
	e.metrics.SetPending(pending)
}

func (e *Endpoint) ensureDefaultProfile() {
	if _, err := e.load(); !errors.Is(err, ErrNoProfile) {
		return
	}
	s := profile.Wrap(profile.New(profile.DefaultName, profile.MinGrade), e.deviceID, false, defaultProfileTime)
	if err := e.save(s); err != nil {
		e.logger.Printf("WARNING: failed to create default profile: %v", err)
		return
	}
	e.logger.Printf("Created default profile %q", s.Profile.Name)
}
