package entitlement

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileSource reads the purchase-state file and, once started, reports
// changes to it.
//
// The parent directory is watched rather than the file itself so that
// atomic replace-by-rename writes and first-time creation are seen.
type FileSource struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *log.Logger

	changes chan bool
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	last    bool
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a source for the file at path. Nil logger means
// stderr with an "[entitlement] " prefix.
func NewFileSource(path string, logger *log.Logger) (*FileSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[entitlement] ", log.LstdFlags)
	}

	return &FileSource{
		path:    abs,
		watcher: watcher,
		logger:  logger,
		changes: make(chan bool, 8),
		errors:  make(chan error, 8),
		done:    make(chan struct{}),
	}, nil
}

// Path returns the absolute path of the watched file.
func (f *FileSource) Path() string {
	return f.path
}

// WatchUnlocked implements Source by reading the file.
func (f *FileSource) WatchUnlocked(context.Context) (bool, error) {
	return ReadFile(f.path)
}

// Start begins watching. The value read at start is the baseline; only
// later changes are sent on Changes.
func (f *FileSource) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := f.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	last, err := ReadFile(f.path)
	if err != nil {
		f.logger.Printf("WARNING: %v", err)
	}
	f.last = last

	f.running = true
	f.wg.Add(1)
	go f.processEvents()
	return nil
}

// Stop stops watching and closes the Changes and Errors channels. It
// blocks until the event goroutine has exited. A source that was never
// started only releases its watcher.
func (f *FileSource) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return f.watcher.Close()
	}
	f.running = false
	f.mu.Unlock()

	close(f.done)
	if err := f.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	f.wg.Wait()

	close(f.changes)
	close(f.errors)
	return nil
}

// Changes emits the new value each time the file's answer flips.
func (f *FileSource) Changes() <-chan bool {
	return f.changes
}

// Errors emits watch and parse errors.
func (f *FileSource) Errors() <-chan error {
	return f.errors
}

// IsRunning reports whether the watcher is started.
func (f *FileSource) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Follow applies the current value to t, then every change, until ctx is
// done or the source stops. Errors are logged.
func (f *FileSource) Follow(ctx context.Context, t Target) error {
	if err := Apply(ctx, f, t); err != nil {
		f.logger.Printf("WARNING: failed to apply entitlement: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case unlocked, ok := <-f.changes:
			if !ok {
				return nil
			}
			f.logger.Printf("Entitlement changed: watchUnlocked=%v", unlocked)
			if err := Apply(ctx, Static(unlocked), t); err != nil {
				f.logger.Printf("WARNING: failed to apply entitlement: %v", err)
			}
		case err, ok := <-f.errors:
			if !ok {
				return nil
			}
			f.logger.Printf("WARNING: %v", err)
		}
	}
}

func (f *FileSource) processEvents() {
	defer f.wg.Done()

	for {
		select {
		case <-f.done:
			return

		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if !f.relevant(event) {
				continue
			}
			f.reload()

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.sendErr(err)
		}
	}
}

// relevant filters out events for sibling files and chmod-only changes.
func (f *FileSource) relevant(event fsnotify.Event) bool {
	abs, err := filepath.Abs(event.Name)
	if err != nil || abs != f.path {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

func (f *FileSource) reload() {
	unlocked, err := ReadFile(f.path)
	if err != nil {
		// Partial writes parse badly; the next write event retries.
		f.sendErr(err)
		return
	}

	f.mu.Lock()
	changed := unlocked != f.last
	f.last = unlocked
	f.mu.Unlock()

	if changed {
		select {
		case f.changes <- unlocked:
		case <-f.done:
		}
	}
}

func (f *FileSource) sendErr(err error) {
	select {
	case f.errors <- err:
	case <-f.done:
	default:
		f.logger.Printf("WARNING: dropped watcher error: %v", err)
	}
}
