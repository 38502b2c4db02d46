package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/volume-sync/internal/config"
	"github.com/jmylchreest/volume-sync/internal/pulse"
	"github.com/jmylchreest/volume-sync/internal/volsync"
)

// ErrConnectionLost is returned by Run when the audio server connection terminates.
var ErrConnectionLost = errors.New("audio server connection lost")

// AudioClient is the audio server connection used by the daemon.
type AudioClient interface {
	volsync.AudioServer
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, handler pulse.EventHandler) error
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Daemon connects the audio server, the config file watcher and the
// volume sync dispatcher.
type Daemon struct {
	logger     *slog.Logger
	client     AudioClient
	configPath string
	onConfig   volsync.ConfigCallback
}

// New creates a Daemon that reads its configuration from configPath.
func New(client AudioClient, configPath string, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		logger:     logger,
		client:     client,
		configPath: configPath,
	}
}

// SetConfigCallback sets the callback invoked whenever a configuration is
// applied, at startup and after every reload.
func (d *Daemon) SetConfigCallback(callback volsync.ConfigCallback) {
	d.onConfig = callback
}

// Run connects to the audio server and keeps tracked sinks in sync until
// ctx is cancelled. It returns an error if the connection cannot be set up,
// is lost, or an event cannot be delivered to the dispatcher.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if err := d.client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to audio server: %w", err)
	}
	defer func() {
		if err := d.client.Close(); err != nil {
			d.logger.Debug("error closing audio server connection", "error", err)
		}
	}()

	dispatcher := volsync.NewDispatcher(d.client, config.NewFileSource(d.configPath), d.logger)
	dispatcher.SetConfigCallback(d.onConfig)

	runErr := make(chan error, 1)
	go func() { runErr <- dispatcher.Run(ctx) }()

	submit := func(event volsync.Event) {
		if err := dispatcher.Submit(ctx, event); err != nil {
			if ctx.Err() != nil {
				return
			}
			cancel(fmt.Errorf("failed to queue %s: %w", event, err))
		}
	}

	// Subscribe before the initial enumeration completes so no sink
	// appearing in between is missed; events queue behind the rebuild.
	err := d.client.Subscribe(ctx, func(e pulse.Event) {
		if event := eventFromPulse(e); event != nil {
			submit(event)
		}
	})
	if err != nil {
		cancel(nil)
		<-runErr
		return fmt.Errorf("failed to subscribe to sink events: %w", err)
	}

	watcher, err := config.NewWatcher(d.configPath, d.logger)
	if err != nil {
		d.logger.Warn("config hot-reload disabled", "error", err)
	} else {
		defer func() { _ = watcher.Stop() }()
		watcher.SetChangeCallback(func() {
			submit(volsync.ConfigReloaded{})
		})
		if err := watcher.Start(ctx); err != nil {
			d.logger.Warn("config hot-reload disabled", "error", err)
		}
	}

	d.logger.Info("volume-sync ready", "config", d.configPath)

	var result error
	select {
	case <-ctx.Done():
		result = <-runErr
	case <-d.client.Done():
		if ctx.Err() == nil {
			cancel(fmt.Errorf("%w: %v", ErrConnectionLost, d.client.Err()))
		}
		result = <-runErr
	case result = <-runErr:
		cancel(nil)
	}

	if result != nil {
		return result
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// eventFromPulse converts an audio server notification into a dispatcher event.
func eventFromPulse(e pulse.Event) volsync.Event {
	switch e.Op {
	case pulse.OpNew:
		return volsync.SinkAppeared{Index: e.Index, Name: e.Name}
	case pulse.OpChanged:
		return volsync.SinkChanged{Index: e.Index}
	case pulse.OpRemoved:
		return volsync.SinkRemoved{Index: e.Index}
	default:
		return nil
	}
}
