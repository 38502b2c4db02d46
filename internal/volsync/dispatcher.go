package volsync

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/volume-sync/internal/config"
	"github.com/jmylchreest/volume-sync/internal/sink"
)

// DefaultQueueSize is the capacity of the dispatcher's event channel.
const DefaultQueueSize = 64

// ErrDispatcherStopped is returned by Submit once Run has returned.
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// ConfigSource supplies the configuration on every reload.
type ConfigSource interface {
	Load() (*config.Config, error)
}

// ConfigCallback is called with a copy of every configuration the
// dispatcher switches to, including the fallback default.
type ConfigCallback func(cfg *config.Config)

// Dispatcher is the single consumer of sink and config events. It owns the
// sink registry and the current configuration, and triggers volume
// propagation when a tracked sink changes.
type Dispatcher struct {
	logger     *slog.Logger
	server     AudioServer
	source     ConfigSource
	registry   *sink.Registry
	propagator *Propagator

	events  chan Event
	done    chan struct{}
	running atomic.Bool

	mu       sync.RWMutex
	cfg      *config.Config
	onConfig ConfigCallback
}

// NewDispatcher creates a Dispatcher. Call Run to start processing.
func NewDispatcher(server AudioServer, source ConfigSource, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:     logger,
		server:     server,
		source:     source,
		registry:   sink.NewRegistry(),
		propagator: NewPropagator(server, logger),
		events:     make(chan Event, DefaultQueueSize),
		done:       make(chan struct{}),
		cfg:        config.Default(),
	}
}

// SetConfigCallback sets the callback invoked after each configuration load.
func (d *Dispatcher) SetConfigCallback(callback ConfigCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onConfig = callback
}

// Registry returns the dispatcher's sink registry.
func (d *Dispatcher) Registry() *sink.Registry {
	return d.registry
}

// Config returns a copy of the current configuration.
func (d *Dispatcher) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg.Clone()
}

// Done returns a channel that is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Submit queues an event. Events are processed in submission order.
// It blocks while the queue is full and fails with ErrDispatcherStopped
// once the dispatcher is no longer consuming.
func (d *Dispatcher) Submit(ctx context.Context, event Event) error {
	select {
	case <-d.done:
		return ErrDispatcherStopped
	default:
	}

	select {
	case d.events <- event:
		return nil
	case <-d.done:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run loads the configuration, builds the tracked set from a full sink
// enumeration and then processes events until ctx is cancelled.
// A failed initial enumeration is returned as an error.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("dispatcher already running")
	}
	defer close(d.done)

	if err := d.reload(ctx); err != nil {
		return fmt.Errorf("initial sink enumeration failed: %w", err)
	}

	d.logger.Debug("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("dispatcher stopped")
			return nil
		case event := <-d.events:
			d.handle(ctx, event)
		}
	}
}

// handle processes a single event synchronously.
func (d *Dispatcher) handle(ctx context.Context, event Event) {
	d.logger.Debug("handling event", "event", event.String())

	switch e := event.(type) {
	case SinkAppeared:
		names := d.trackedNames()
		if d.registry.NoteAppeared(e.Index, e.Name, names) {
			d.logger.Info("tracking sink", "index", e.Index, "name", e.Name)
		}

	case SinkChanged:
		d.propagateFrom(ctx, e.Index)

	case SinkRemoved:
		if d.registry.NoteRemoved(e.Index) {
			d.logger.Info("stopped tracking removed sink", "index", e.Index)
		}

	case ConfigReloaded:
		if err := d.reload(ctx); err != nil {
			d.logger.Error("failed to rebuild tracked sinks", "error", err)
		}

	default:
		d.logger.Warn("ignoring unknown event", "event", event.String())
	}
}

// propagateFrom copies the volume of a tracked sink to every other tracked sink.
func (d *Dispatcher) propagateFrom(ctx context.Context, from uint32) {
	if !d.registry.Contains(from) {
		return
	}

	logger := d.logger.With("sync_id", newSyncID())
	for _, to := range d.registry.Snapshot() {
		if to == from {
			continue
		}
		if err := d.propagator.sync(ctx, logger, from, to); err != nil {
			logger.Warn("failed to sync volume", "from", from, "to", to, "error", err)
		}
	}
}

// reload replaces the configuration and rebuilds the registry from a fresh
// sink enumeration. A configuration that cannot be loaded is replaced by the
// default, which tracks nothing.
func (d *Dispatcher) reload(ctx context.Context) error {
	cfg, err := d.source.Load()
	if err != nil {
		if config.IsNotExist(err) {
			d.logger.Warn("config file not found, no sinks will be synced", "error", err)
		} else {
			d.logger.Warn("failed to load config, no sinks will be synced", "error", err)
		}
		cfg = config.Default()
	}

	d.mu.Lock()
	d.cfg = cfg.Clone()
	callback := d.onConfig
	d.mu.Unlock()

	if callback != nil {
		callback(cfg.Clone())
	}

	names := cfg.TrackedNames()

	sinks, err := d.server.ListSinks(ctx)
	if err != nil {
		// Without an enumeration nothing new can be added, but sinks whose
		// name left the configuration must stop being synced right away.
		if dropped := d.registry.Retain(names); dropped > 0 {
			d.logger.Info("stopped tracking unconfigured sinks", "dropped", dropped)
		}
		return fmt.Errorf("failed to list sinks: %w", err)
	}

	d.registry.Rebuild(sinks, names)

	tracked := d.registry.Names()
	d.logger.Info("tracked sinks updated", "configured", len(names), "tracked", len(tracked))
	for index, name := range tracked {
		d.logger.Debug("tracked sink", "index", index, "name", name)
	}
	return nil
}

// trackedNames returns the tracked names of the current configuration.
func (d *Dispatcher) trackedNames() map[string]struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg.TrackedNames()
}

// newSyncID returns an id that ties together the log records of one propagation.
func newSyncID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return ""
	}
	return id.String()
}
