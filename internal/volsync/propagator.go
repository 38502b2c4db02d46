package volsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/volume-sync/internal/pulse"
)

// AudioServer is the part of the audio server client the engine needs.
type AudioServer interface {
	ListSinks(ctx context.Context) ([]pulse.Sink, error)
	SinkByIndex(ctx context.Context, index uint32) (pulse.Sink, error)
	SetSinkVolume(ctx context.Context, index uint32, volume pulse.Volume) error
}

// Propagator copies the volume of one sink onto another.
type Propagator struct {
	server AudioServer
	logger *slog.Logger
}

// NewPropagator creates a Propagator using server.
func NewPropagator(server AudioServer, logger *slog.Logger) *Propagator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Propagator{
		server: server,
		logger: logger,
	}
}

// Sync sets the volume of sink to to the current volume of sink from.
//
// Both volumes are fetched fresh. Nothing is written when to already has
// from's volume, which stops a set-induced change notification from
// echoing back. A sink that disappeared in the meantime is not an error.
func (p *Propagator) Sync(ctx context.Context, from, to uint32) error {
	return p.sync(ctx, p.logger, from, to)
}

func (p *Propagator) sync(ctx context.Context, logger *slog.Logger, from, to uint32) error {
	if from == to {
		return nil
	}

	src, err := p.server.SinkByIndex(ctx, from)
	if errors.Is(err, pulse.ErrNoSuchSink) {
		logger.Debug("source sink vanished, skipping sync", "from", from, "to", to)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read sink %d: %w", from, err)
	}

	dst, err := p.server.SinkByIndex(ctx, to)
	if errors.Is(err, pulse.ErrNoSuchSink) {
		logger.Debug("target sink vanished, skipping sync", "from", from, "to", to)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read sink %d: %w", to, err)
	}

	if dst.Volume.Equal(src.Volume) {
		logger.Debug("volumes already equal", "from", from, "to", to, "volume", src.Volume.String())
		return nil
	}

	logger.Info("syncing volume", "from", from, "to", to, "volume", src.Volume.String())
	err = p.server.SetSinkVolume(ctx, to, src.Volume)
	if errors.Is(err, pulse.ErrNoSuchSink) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to set volume of sink %d: %w", to, err)
	}
	return nil
}
