// Package watch provides the filesystem coordinator that keeps the
// store continuously synchronized with the watched root.
//
// The coordinator:
// 1. Walks the root once at startup to catch changes made while down
// 2. Watches the tree recursively for file changes
// 3. Debounces rapid rewrites and dispatches each settled path once
// 4. Broadcasts a change topic after every successful dispatch
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sessionwatch/sessionwatch/internal/ingest"
)

// Broadcaster fans a change notification out to live subscribers. It
// is satisfied by live.Hub and faked in tests. A nil broadcaster
// disables notifications but not ingestion.
type Broadcaster interface {
	Publish(topic, path string)
}

// Config holds configuration for the coordinator.
type Config struct {
	// DebounceInterval is how long a path must stay quiet before its
	// change is dispatched. Editors and the transcript writer both
	// rewrite files in rapid bursts; batching them avoids re-parsing
	// half-written updates.
	DebounceInterval time.Duration

	// ScanOnStart walks the whole root before watching, so changes
	// made while the process was down are picked up.
	ScanOnStart bool

	// Logger for coordinator activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 200 * time.Millisecond,
		ScanOnStart:      true,
		Logger:           log.New(os.Stderr, "[watch] ", log.LstdFlags),
	}
}

// deniedDirs are top-level entries of the root that must never be read
// or watched. They hold credentials, feature-flag state, and other
// private data with no ingestion value.
var deniedDirs = map[string]bool{
	"statsig":         true,
	"shell-snapshots": true,
	"telemetry":       true,
	"cache":           true,
}

// deniedFiles are individual filenames that must never be read.
var deniedFiles = map[string]bool{
	".credentials.json": true,
}

// Denied reports whether path is off-limits under root. Paths outside
// the root are denied as well.
func Denied(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return true
	}
	if rel == "." {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if deniedDirs[parts[0]] {
		return true
	}
	return deniedFiles[parts[len(parts)-1]]
}

// Coordinator owns the fsnotify watcher and the debounce queue. All
// dispatching happens on a single goroutine, so the store sees one
// writer regardless of how many files change at once.
type Coordinator struct {
	root   string
	router *ingest.Router
	pub    Broadcaster
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // path -> last event time
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New creates a coordinator for the given root with default config.
func New(root string, router *ingest.Router, pub Broadcaster) (*Coordinator, error) {
	return NewWithConfig(root, router, pub, DefaultConfig())
}

// NewWithConfig creates a coordinator with custom configuration.
func NewWithConfig(root string, router *ingest.Router, pub Broadcaster, config *Config) (*Coordinator, error) {
	if root == "" {
		return nil, fmt.Errorf("root cannot be empty")
	}
	if router == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		root:        root,
		router:      router,
		pub:         pub,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins watching. It blocks until ctx is cancelled or Stop is
// called. Starting an already running coordinator is an error.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already running")
	}
	c.running = true
	c.mu.Unlock()

	c.config.Logger.Printf("Watching %s", c.root)

	fail := func(err error) error {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return err
	}

	if err := c.addDirTree(c.root); err != nil {
		return fail(fmt.Errorf("failed to watch root: %w", err))
	}

	if c.config.ScanOnStart {
		if err := c.Scan(ctx); err != nil {
			return fail(fmt.Errorf("startup scan failed: %w", err))
		}
	}

	c.wg.Add(2)
	go c.watchFileEvents()
	go c.processChangeQueue()

	select {
	case <-ctx.Done():
		return c.Stop()
	case <-c.ctx.Done():
		return nil
	}
}

// Stop shuts the coordinator down and waits for in-flight dispatches.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	c.cancel()
	if err := c.watcher.Close(); err != nil {
		c.config.Logger.Printf("Error closing watcher: %v", err)
	}
	c.wg.Wait()

	c.config.Logger.Println("Coordinator stopped")
	return nil
}

// Close releases the underlying watcher without starting it. One-shot
// scans create a coordinator, call Scan, and then Close.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("coordinator is running, use Stop")
	}
	c.cancel()
	return c.watcher.Close()
}

// IsRunning reports whether Start has been called and Stop has not.
func (c *Coordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Scan walks the entire root and dispatches every tracked path once.
// Because every importer is idempotent, scanning is always safe; files
// already fully ingested are cheap no-ops thanks to the offset ledger.
func (c *Coordinator) Scan(ctx context.Context) error {
	c.config.Logger.Println("Scanning root")

	var dispatched int
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			c.config.Logger.Printf("Scan: skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if Denied(c.root, path) {
				return fs.SkipDir
			}
			return nil
		}
		if Denied(c.root, path) {
			return nil
		}
		if c.dispatch(ctx, path) {
			dispatched++
		}
		return ctx.Err()
	})
	if err != nil {
		return err
	}

	c.config.Logger.Printf("Scan complete, %d paths dispatched", dispatched)
	return nil
}

// addDirTree registers watches for dir and every non-denied directory
// below it. fsnotify watches are per-directory, so recursion is ours.
func (c *Coordinator) addDirTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != c.root && Denied(c.root, path) {
			return fs.SkipDir
		}
		if err := c.watcher.Add(path); err != nil {
			c.config.Logger.Printf("Failed to watch %s: %v", path, err)
		}
		return nil
	})
}

// watchFileEvents monitors filesystem events and queues changes.
func (c *Coordinator) watchFileEvents() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return

		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.handleEvent(event)

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (c *Coordinator) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	if Denied(c.root, event.Name) {
		return
	}

	// New directories must be added to the watcher before their
	// contents change; files created in the gap are picked up by the
	// queue below.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := c.addDirTree(event.Name); err != nil {
				c.config.Logger.Printf("Failed to watch new directory %s: %v", event.Name, err)
			}
			c.queueDirContents(event.Name)
			return
		}
	}

	c.queueChange(event.Name)
}

// queueDirContents queues every file already inside a newly created
// directory. Files written before the directory watch took effect never
// produce their own events.
func (c *Coordinator) queueDirContents(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !Denied(c.root, path) {
			c.queueChange(path)
		}
	}
}

// queueChange adds a path to the change queue with debouncing.
func (c *Coordinator) queueChange(path string) {
	c.changeQueueMu.Lock()
	defer c.changeQueueMu.Unlock()
	c.changeQueue[path] = time.Now()
}

// processChangeQueue dispatches queued changes once they settle.
func (c *Coordinator) processChangeQueue() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return

		case <-ticker.C:
			c.processPendingChanges()
		}
	}
}

// processPendingChanges dispatches paths quiet for a full debounce
// interval. Paths still being rewritten stay queued for the next tick.
func (c *Coordinator) processPendingChanges() {
	c.changeQueueMu.Lock()
	now := time.Now()
	var ready []string
	for path, queuedAt := range c.changeQueue {
		if now.Sub(queuedAt) < c.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(c.changeQueue, path)
	}
	c.changeQueueMu.Unlock()

	for _, path := range ready {
		c.dispatch(c.ctx, path)
	}
}

// dispatch routes one settled path and publishes its topic. Dispatch
// failures are logged and dropped; the next change to the same file
// retries from the ledger's resume point.
func (c *Coordinator) dispatch(ctx context.Context, path string) bool {
	topic, err := c.router.Dispatch(ctx, path)
	if err != nil {
		c.config.Logger.Printf("Error processing %s: %v", path, err)
		return false
	}
	if topic == "" {
		return false
	}
	if c.pub != nil {
		c.pub.Publish(topic, path)
	}
	return true
}
