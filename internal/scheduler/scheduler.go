// Package scheduler saves drafts of dirty editor sessions on a cron
// schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultInterval is how often the loop checks for due sessions.
const DefaultInterval = 10 * time.Second

// Target is an editor session the autosaver can save.
type Target interface {
	Key() string
	Dirty() bool
	Autosave(ctx context.Context) error
}

type entry struct {
	target  Target
	next    time.Time
	running bool
}

// Autosaver tracks registered sessions and saves each dirty one when its
// schedule comes due.
type Autosaver struct {
	schedule cron.Schedule
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*entry

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Options configures an Autosaver.
type Options struct {
	// Cron is a five-field expression or a descriptor such as "@every 1m".
	Cron     string
	Interval time.Duration
	Logger   *slog.Logger
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewAutosaver parses the schedule.
func NewAutosaver(opts Options) (*Autosaver, error) {
	schedule, err := parser.Parse(opts.Cron)
	if err != nil {
		return nil, fmt.Errorf("parse autosave schedule %q: %w", opts.Cron, err)
	}
	a := &Autosaver{
		schedule: schedule,
		interval: opts.Interval,
		logger:   opts.Logger,
		now:      func() time.Time { return time.Now().UTC() },
		entries:  make(map[string]*entry),
	}
	if a.interval <= 0 {
		a.interval = DefaultInterval
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return a, nil
}

// Register adds t, replacing any target with the same key.
func (a *Autosaver) Register(t Target) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[t.Key()] = &entry{target: t, next: a.schedule.Next(a.now())}
}

// Unregister removes the target with key.
func (a *Autosaver) Unregister(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, key)
}

// nextRun reports when key is next due.
func (a *Autosaver) nextRun(key string) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[key]
	if !ok {
		return time.Time{}, false
	}
	return e.next, true
}

// Start launches the background loop.
func (a *Autosaver) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.done != nil {
		return fmt.Errorf("autosaver already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.loop(loopCtx, a.done)
	a.logger.Info("autosaver started", slog.Duration("interval", a.interval))
	return nil
}

// Stop cancels the loop and waits for it to exit. Calling Stop on a
// stopped Autosaver is a no-op.
func (a *Autosaver) Stop() error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.cancel == nil {
		return nil
	}
	a.cancel()
	<-a.done
	a.cancel, a.done = nil, nil
	a.logger.Info("autosaver stopped")
	return nil
}

func (a *Autosaver) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// tick saves every due, dirty target and returns how many were saved.
func (a *Autosaver) tick(ctx context.Context) int {
	now := a.now()

	a.mu.Lock()
	var due []*entry
	for _, e := range a.entries {
		if e.running || e.next.After(now) {
			continue
		}
		e.running = true
		due = append(due, e)
	}
	a.mu.Unlock()

	saved := 0
	for _, e := range due {
		if e.target.Dirty() {
			if err := e.target.Autosave(ctx); err != nil {
				a.logger.ErrorContext(ctx, "autosave failed",
					slog.String("key", e.target.Key()),
					slog.String("error", err.Error()))
			} else {
				saved++
				a.logger.DebugContext(ctx, "autosaved", slog.String("key", e.target.Key()))
			}
		}
		a.mu.Lock()
		e.running = false
		e.next = a.schedule.Next(now)
		a.mu.Unlock()
	}
	return saved
}
