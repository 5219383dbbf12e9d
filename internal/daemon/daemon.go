// Package daemon runs one spellsync device: the local cache, the sync
// endpoint, the link to the other device and, on the primary, the cloud
// backup loop.
//
// The daemon:
//  1. Opens the SQLite cache and starts the endpoint actor
//  2. Serves (primary) or dials (companion) the peer link
//  3. Reconciles with the cloud slot at start and on an interval (primary)
//  4. Mirrors the purchase-state file into the profile
//  5. Periodically re-reads the cache so changes made by the CLI are pushed
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spellflare/spellsync/internal/cache"
	"github.com/spellflare/spellsync/internal/cloud"
	"github.com/spellflare/spellsync/internal/config"
	"github.com/spellflare/spellsync/internal/endpoint"
	"github.com/spellflare/spellsync/internal/entitlement"
	"github.com/spellflare/spellsync/internal/logging"
	"github.com/spellflare/spellsync/internal/metrics"
	"github.com/spellflare/spellsync/internal/transport"
)

// Options carries dependencies that are not plain configuration.
type Options struct {
	// Sink receives all component logs. Default: built from cfg.Log.
	Sink *logging.Sink

	// Slot replaces the Redis slot named by cfg.Cloud. It is closed on
	// shutdown if it implements io.Closer.
	Slot cloud.Slot

	// Now is the endpoint clock (default: time.Now).
	Now func() time.Time
}

// Daemon is one running device.
type Daemon struct {
	cfg    *config.Config
	role   endpoint.Role
	logger *log.Logger

	sink    *logging.Sink
	ownSink bool

	store     *cache.SQLite
	metrics   *metrics.Metrics
	endpoint  *endpoint.Endpoint
	server    *transport.Server
	client    *transport.Client
	slot      cloud.Slot
	bridge    *cloud.Bridge
	purchases *entitlement.FileSource

	mu       sync.Mutex
	cancel   context.CancelFunc
	ready    chan struct{}
	startErr error // set before ready closes
	done     chan struct{}
	shutOnce sync.Once
}

// New builds every component of the device described by cfg. Nothing runs
// until Start.
func New(cfg *config.Config, opts *Options) (d *Daemon, err error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if opts == nil {
		opts = &Options{}
	}
	role, err := endpoint.ParseRole(cfg.Role)
	if err != nil {
		return nil, err
	}

	d = &Daemon{cfg: cfg, role: role, ready: make(chan struct{}), done: make(chan struct{})}

	d.sink = opts.Sink
	if d.sink == nil {
		d.sink, err = logging.Open(logging.Config{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			Verbose:    cfg.Log.Verbose,
		})
		if err != nil {
			return nil, err
		}
		d.ownSink = true
	}
	d.logger = d.sink.Logger("daemon")

	// Release whatever was opened if a later step fails.
	defer func() {
		if err != nil {
			d.shutdown()
		}
	}()

	d.store, err = cache.Open(cfg.CachePath(), d.sink.Logger("cache"))
	if err != nil {
		return nil, err
	}
	d.metrics = metrics.New()

	var session transport.Session
	switch role {
	case endpoint.RolePrimary:
		scfg := &transport.ServerConfig{
			Addr:   cfg.Peer.Listen,
			Path:   cfg.Peer.Path,
			Logger: d.sink.Logger("transport"),
		}
		if cfg.Metrics.Enabled {
			scfg.Metrics = d.metrics.Handler()
		}
		d.server = transport.NewServer(scfg)
		session = d.server
	case endpoint.RoleCompanion:
		d.client = transport.NewClient(transport.ClientConfig{
			URL:               cfg.Peer.URL,
			ReconnectInterval: cfg.Peer.ReconnectInterval,
			Logger:            d.sink.Logger("transport"),
		})
		session = d.client
	}

	d.endpoint, err = endpoint.New(d.store, session, &endpoint.Config{
		Role:          role,
		DeviceID:      cfg.DeviceID,
		ReplyTimeout:  cfg.Peer.ReplyTimeout,
		CreateDefault: cfg.CreateDefault,
		Now:           opts.Now,
		Metrics:       d.metrics,
		Logger:        d.sink.Logger("endpoint"),
	})
	if err != nil {
		return nil, err
	}

	if role == endpoint.RolePrimary {
		d.slot = opts.Slot
		if d.slot == nil && cfg.CloudEnabled() {
			rcfg := cloud.DefaultRedisConfig()
			rcfg.Addr = cfg.Cloud.RedisAddr
			rcfg.Password = cfg.Cloud.Password
			rcfg.DB = cfg.Cloud.DB
			rcfg.Account = cfg.Cloud.Account
			d.slot, err = cloud.NewRedisSlot(rcfg)
			if err != nil {
				return nil, err
			}
		}
		if d.slot != nil {
			d.bridge = cloud.NewBridge(d.slot, d.endpoint, &cloud.Config{
				Metrics: d.metrics,
				Logger:  d.sink.Logger("cloud"),
			})
		}
	}

	d.purchases, err = entitlement.NewFileSource(cfg.EntitlementPath(), d.sink.Logger("entitlement"))
	if err != nil {
		return nil, err
	}

	return d, nil
}

// Endpoint returns the device's sync endpoint.
func (d *Daemon) Endpoint() *endpoint.Endpoint {
	return d.endpoint
}

// Bridge returns the cloud bridge, or nil when backup is off.
func (d *Daemon) Bridge() *cloud.Bridge {
	return d.bridge
}

// Metrics returns the device's collectors.
func (d *Daemon) Metrics() *metrics.Metrics {
	return d.metrics
}

// Ready is closed once Start has brought up the endpoint and the listener,
// or has failed to. Check StartErr after it closes.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// StartErr returns why startup failed. Only meaningful after Ready is closed.
func (d *Daemon) StartErr() error {
	select {
	case <-d.ready:
		return d.startErr
	default:
		return nil
	}
}

// Addr returns the primary's listen address, or "" on a companion. The
// bound port is known after Ready.
func (d *Daemon) Addr() string {
	if d.server == nil {
		return ""
	}
	return d.server.Addr()
}

// Start runs the device until ctx is cancelled, Stop is called, or a
// component fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return errors.New("daemon already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	defer close(d.done)
	defer d.shutdown()
	defer cancel()

	d.logger.Printf("Starting %s (device %s, cache %s)", d.role, d.endpoint.DeviceID(), d.store.Path())

	if err := d.startComponents(); err != nil {
		d.startErr = err
		close(d.ready)
		return err
	}
	close(d.ready)

	g, gctx := errgroup.WithContext(ctx)

	if d.client != nil {
		g.Go(func() error { return d.client.Run(gctx) })
	}
	if d.bridge != nil {
		g.Go(func() error { return d.bridge.Run(gctx, d.cfg.Cloud.Interval) })
	}
	g.Go(func() error { return d.purchases.Follow(gctx, d.endpoint) })
	g.Go(func() error { return d.refreshLoop(gctx) })

	err := g.Wait()
	d.logger.Println("Shutdown signal received")
	return err
}

func (d *Daemon) startComponents() error {
	if err := d.endpoint.Start(); err != nil {
		return fmt.Errorf("failed to start endpoint: %w", err)
	}
	if d.server != nil {
		if err := d.server.Start(); err != nil {
			return err
		}
	}
	if err := d.purchases.Start(); err != nil {
		return fmt.Errorf("failed to watch purchases: %w", err)
	}
	return nil
}

// Stop ends a running Start and waits for it to return. A daemon that was
// never started just releases its resources.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()

	if cancel == nil {
		d.shutdown()
		return nil
	}
	cancel()
	<-d.done
	return nil
}

// refreshLoop picks up changes written to the cache by other processes and
// retries whatever is still pending.
func (d *Daemon) refreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			logging.Debugf(d.logger, "Refreshing cache")
			if err := d.endpoint.Refresh(ctx); err != nil && ctx.Err() == nil {
				d.logger.Printf("WARNING: refresh failed: %v", err)
			}
		}
	}
}

// shutdown stops components in reverse dependency order. Safe to call more
// than once.
func (d *Daemon) shutdown() {
	d.shutOnce.Do(func() {
		if d.server != nil {
			if err := d.server.Stop(); err != nil {
				d.logger.Printf("Error stopping server: %v", err)
			}
		}
		if d.purchases != nil {
			if err := d.purchases.Stop(); err != nil {
				d.logger.Printf("Error stopping entitlement watcher: %v", err)
			}
		}
		if d.endpoint != nil {
			d.endpoint.Stop()
		}
		if c, ok := d.slot.(io.Closer); ok {
			if err := c.Close(); err != nil {
				d.logger.Printf("Error closing cloud slot: %v", err)
			}
		}
		if d.store != nil {
			if err := d.store.Close(); err != nil {
				d.logger.Printf("Error closing cache: %v", err)
			}
		}
		d.logger.Println("Daemon stopped")
		if d.ownSink {
			_ = d.sink.Close()
		}
	})
}
