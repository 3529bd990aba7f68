// Package watch reacts to changes of the prefix-mapping document. A single
// fsnotify subscription covers the storage directory; bursts of change
// notifications are debounced into one action, transient empty writes are
// filtered out, and the configured policy decides what the action is.
package watch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/pathmap/internal/debug"
	"github.com/standardbeagle/pathmap/internal/errors"
	"github.com/standardbeagle/pathmap/internal/remap"
)

// Policy selects what happens after a debounced mapping-file change.
type Policy string

const (
	// PolicyRestart invokes the host's restart callback; the host is
	// expected to restart its tooling client.
	PolicyRestart Policy = "restart"
	// PolicyIgnore takes no action on mapping changes.
	PolicyIgnore Policy = "ignore"
	// PolicyPrompt reloads the prefix mapping. Default.
	PolicyPrompt Policy = "prompt"
)

// ParsePolicy validates a policy setting string.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyRestart, PolicyIgnore, PolicyPrompt:
		return Policy(s), nil
	case "":
		return PolicyPrompt, nil
	default:
		return "", fmt.Errorf("unknown reload policy %q (want restart, ignore or prompt)", s)
	}
}

// DefaultDebounce is the quiet period after the last notification before
// the mapping file is inspected. Editors and build tools often write via
// truncate+rewrite, producing several OS events per logical save.
const DefaultDebounce = 2 * time.Second

// Controller owns the filesystem subscription for the mapping document and
// the single debounce timer. All timer state is guarded by one mutex;
// arming cancels and replaces any previous timer, so at most one fire is
// ever pending.
type Controller struct {
	remapper  *remap.Remapper
	policy    Policy
	debounce  time.Duration
	onRestart func()

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timer    *time.Timer
	lastPath string // most recent notification wins the size check
	closed   bool

	eventsSeen int64
	reloads    int64
	lastEvent  time.Time

	wg sync.WaitGroup
}

// NewController creates a controller for the given remapper. A zero
// debounce selects DefaultDebounce.
func NewController(r *remap.Remapper, policy Policy, debounce time.Duration) *Controller {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if policy == "" {
		policy = PolicyPrompt
	}
	return &Controller{
		remapper: r,
		policy:   policy,
		debounce: debounce,
	}
}

// SetRestartHook registers the callback dispatched under PolicyRestart.
// Must be called before Start.
func (c *Controller) SetRestartHook(fn func()) {
	c.onRestart = fn
}

// Start subscribes to the remapper's storage directory. Failure to
// establish the watch leaves the controller in a degraded, non-reactive
// mode; callers should log the returned error as a warning, not abort.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.NewMappingError(errors.ErrorTypeWatch, "start", fmt.Errorf("controller closed"))
	}
	return c.subscribeLocked(c.remapper.StorageDir())
}

// Rewatch moves the subscription to a new storage directory. Used when the
// workspace roots change. Any pending debounce timer is cancelled; the
// debounce state itself is otherwise untouched.
func (c *Controller) Rewatch(storageDir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.NewMappingError(errors.ErrorTypeWatch, "rewatch", fmt.Errorf("controller closed"))
	}
	c.unsubscribeLocked()
	return c.subscribeLocked(storageDir)
}

// Close cancels any pending timer, detaches the subscription and waits for
// the event goroutine. No policy dispatch happens after Close returns.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	c.unsubscribeLocked()
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// subscribeLocked creates the fsnotify watcher for the directory holding
// the mapping document. The directory, not the file, is watched so that
// creation of a missing document is observed.
func (c *Controller) subscribeLocked(storageDir string) error {
	if storageDir == "" {
		return errors.NewMappingError(errors.ErrorTypeWatch, "subscribe", fmt.Errorf("no storage directory configured"))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewMappingError(errors.ErrorTypeWatch, "subscribe", err).WithPath(storageDir)
	}
	if err := watcher.Add(storageDir); err != nil {
		watcher.Close()
		return errors.NewMappingError(errors.ErrorTypeWatch, "subscribe", err).WithPath(storageDir)
	}

	c.watcher = watcher
	c.wg.Add(1)
	go c.processEvents(watcher)

	debug.LogWatch("watching %s for %s\n", storageDir, remap.MappingFileName)
	return nil
}

// unsubscribeLocked tears down the current watcher and cancels the pending
// timer, if any.
func (c *Controller) unsubscribeLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.watcher != nil {
		if err := c.watcher.Close(); err != nil {
			log.Printf("Warning: error closing mapping watcher: %v", err)
		}
		c.watcher = nil
	}
}

// processEvents drains fsnotify events until the watcher is closed.
func (c *Controller) processEvents(watcher *fsnotify.Watcher) {
	defer c.wg.Done()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			c.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Mapping watcher error: %v", err)
		}
	}
}

// handleEvent filters notifications down to writes/creates of the mapping
// document and arms the debounce timer.
func (c *Controller) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != remap.MappingFileName {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	debug.LogWatch("received %v for %s\n", event.Op, event.Name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.eventsSeen++
	c.lastEvent = time.Now()
	c.lastPath = event.Name

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, c.fire)
}

// fire runs once per debounce window. The whole dispatch happens under the
// controller mutex so Close can guarantee nothing fires after it returns.
func (c *Controller) fire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.timer = nil

	// A file cleared (or deleted) since the notification is a transient
	// truncate-then-rewrite artifact; the rewrite will notify again.
	info, err := os.Stat(c.lastPath)
	if err != nil || info.Size() <= 0 {
		debug.LogWatch("skipping empty or missing %s\n", c.lastPath)
		return
	}

	switch c.policy {
	case PolicyIgnore:
		debug.LogWatch("mapping changed, policy ignore\n")

	case PolicyRestart:
		debug.LogWatch("mapping changed, dispatching restart\n")
		if c.onRestart != nil {
			c.onRestart()
		}

	default: // PolicyPrompt
		if err := c.remapper.Reload(); err != nil {
			log.Printf("Warning: mapping reload failed: %v", err)
			return
		}
		c.reloads++
	}
}

// Stats reports watch activity counters.
type Stats struct {
	EventsSeen    int64
	Reloads       int64
	LastEventTime time.Time
	Watching      bool
}

// GetStats returns current watch statistics.
func (c *Controller) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		EventsSeen:    c.eventsSeen,
		Reloads:       c.reloads,
		LastEventTime: c.lastEvent,
		Watching:      c.watcher != nil,
	}
}
