package volsync

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/jmylchreest/volume-sync/internal/config"
	"github.com/jmylchreest/volume-sync/internal/pulse"
)

// setCall records a SetSinkVolume call.
type setCall struct {
	Index  uint32
	Volume pulse.Volume
}

// fakeServer is an in-memory AudioServer.
type fakeServer struct {
	mu      sync.Mutex
	sinks   map[uint32]pulse.Sink
	reads   []uint32
	sets    []setCall
	listErr error
	readErr error

	// onSet is called after a volume was applied, outside the lock
	onSet func(index uint32)
}

func newFakeServer(sinks ...pulse.Sink) *fakeServer {
	s := &fakeServer{sinks: make(map[uint32]pulse.Sink)}
	for _, sink := range sinks {
		s.sinks[sink.Index] = sink
	}
	return s
}

func (s *fakeServer) ListSinks(ctx context.Context) ([]pulse.Sink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]pulse.Sink, 0, len(s.sinks))
	for _, index := range slices.Sorted(maps.Keys(s.sinks)) {
		out = append(out, s.sinks[index])
	}
	return out, nil
}

func (s *fakeServer) SinkByIndex(ctx context.Context, index uint32) (pulse.Sink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = append(s.reads, index)
	if s.readErr != nil {
		return pulse.Sink{}, s.readErr
	}
	sink, ok := s.sinks[index]
	if !ok {
		return pulse.Sink{}, pulse.ErrNoSuchSink
	}
	sink.Volume = slices.Clone(sink.Volume)
	return sink, nil
}

func (s *fakeServer) SetSinkVolume(ctx context.Context, index uint32, volume pulse.Volume) error {
	s.mu.Lock()
	sink, ok := s.sinks[index]
	if !ok {
		s.mu.Unlock()
		return pulse.ErrNoSuchSink
	}
	sink.Volume = slices.Clone(volume)
	s.sinks[index] = sink
	s.sets = append(s.sets, setCall{Index: index, Volume: slices.Clone(volume)})
	onSet := s.onSet
	s.mu.Unlock()

	if onSet != nil {
		onSet(index)
	}
	return nil
}

// setVolume changes a sink volume as if the user did it.
func (s *fakeServer) setVolume(index uint32, volume pulse.Volume) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sink := s.sinks[index]
	sink.Volume = volume
	s.sinks[index] = sink
}

func (s *fakeServer) add(sink pulse.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks[sink.Index] = sink
}

func (s *fakeServer) remove(index uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sinks, index)
}

func (s *fakeServer) volume(index uint32) pulse.Volume {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sinks[index].Volume
}

func (s *fakeServer) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reads)
}

func (s *fakeServer) setCalls() []setCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sets)
}

func (s *fakeServer) resetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = nil
	s.sets = nil
}

// fakeSource is a ConfigSource returning a fixed configuration or error.
type fakeSource struct {
	mu  sync.Mutex
	cfg *config.Config
	err error
}

func sourceWith(names ...string) *fakeSource {
	return &fakeSource{cfg: &config.Config{Sinks: names, LogLevel: config.LogLevelInfo}}
}

func (s *fakeSource) Load() (*config.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.cfg.Clone(), nil
}

func (s *fakeSource) set(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = &config.Config{Sinks: names, LogLevel: config.LogLevelInfo}
	s.err = nil
}

func (s *fakeSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

var errBroken = errors.New("broken")

func vol(percent int) pulse.Volume {
	v := uint32(percent * pulse.VolumeNorm / 100)
	return pulse.Volume{v, v}
}
