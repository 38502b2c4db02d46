package pulse

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	// CoreInterface is the PulseAudio core interface name.
	CoreInterface = "org.PulseAudio.Core1"
	// CorePath is the PulseAudio core object path.
	CorePath dbus.ObjectPath = "/org/pulseaudio/core1"
	// DeviceInterface is implemented by every sink and source object.
	DeviceInterface = "org.PulseAudio.Core1.Device"

	lookupBusName   = "org.PulseAudio1"
	lookupPath      = "/org/pulseaudio/server_lookup1"
	lookupInterface = "org.PulseAudio.ServerLookup1"

	propertiesInterface = "org.freedesktop.DBus.Properties"

	sinkPathPrefix = string(CorePath) + "/sink"
)

// VolumeNorm is the PulseAudio volume that corresponds to 100%.
const VolumeNorm = 65536

var (
	// ErrNoSuchSink is returned when a sink index is not (or no longer) known to the server.
	ErrNoSuchSink = errors.New("no such sink")
	// ErrNotReady is returned when the client is used before Connect succeeded.
	ErrNotReady = errors.New("audio server connection not ready")
)

// State is the connection state of a Client.
type State int32

const (
	// StateDisconnected means Connect has not been called yet.
	StateDisconnected State = iota
	// StateConnecting means the address lookup and handshake are in progress.
	StateConnecting
	// StateReady means the connection can be used.
	StateReady
	// StateFailed means the connection could not be established.
	StateFailed
	// StateTerminated means an established connection has gone away.
	StateTerminated
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Volume is a per-channel sink volume in PulseAudio units.
type Volume []uint32

// Equal reports whether both volumes have the same channels and values.
func (v Volume) Equal(other Volume) bool {
	return slices.Equal(v, other)
}

// Percent returns the average channel volume as a percentage of VolumeNorm.
func (v Volume) Percent() int {
	if len(v) == 0 {
		return 0
	}
	var sum uint64
	for _, ch := range v {
		sum += uint64(ch)
	}
	avg := sum / uint64(len(v))
	return int((avg*100 + VolumeNorm/2) / VolumeNorm)
}

// String returns the volume as a percentage, e.g. "45%".
func (v Volume) String() string {
	return strconv.Itoa(v.Percent()) + "%"
}

// Sink describes an audio output device as reported by the server.
type Sink struct {
	Index  uint32 `json:"index" yaml:"index"`
	Name   string `json:"name" yaml:"name"`
	Volume Volume `json:"volume" yaml:"volume"`
	Mute   bool   `json:"mute" yaml:"mute"`
}

// Op is the kind of change reported by a sink event.
type Op int

const (
	// OpNew means a sink appeared.
	OpNew Op = iota
	// OpChanged means a sink property (volume or mute) changed.
	OpChanged
	// OpRemoved means a sink disappeared.
	OpRemoved
)

// String returns the string representation of Op.
func (o Op) String() string {
	switch o {
	case OpNew:
		return "new"
	case OpChanged:
		return "changed"
	case OpRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is a sink notification delivered by Subscribe.
// Name is only set for OpNew.
type Event struct {
	Op    Op
	Index uint32
	Name  string
}

// EventHandler is called for every sink event, in delivery order.
type EventHandler func(Event)

// SinkPath returns the object path of the sink with the given index.
func SinkPath(index uint32) dbus.ObjectPath {
	return dbus.ObjectPath(sinkPathPrefix + strconv.FormatUint(uint64(index), 10))
}

// SinkIndexFromPath extracts the sink index from a sink object path.
func SinkIndexFromPath(path dbus.ObjectPath) (uint32, error) {
	s := string(path)
	if !strings.HasPrefix(s, sinkPathPrefix) {
		return 0, fmt.Errorf("not a sink object path: %q", s)
	}
	index, err := strconv.ParseUint(strings.TrimPrefix(s, sinkPathPrefix), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid sink object path %q: %w", s, err)
	}
	return uint32(index), nil
}

// sinkFromProperties converts the result of a Device GetAll call into a Sink.
func sinkFromProperties(props map[string]dbus.Variant) (Sink, error) {
	var sink Sink

	index, ok := props["Index"].Value().(uint32)
	if !ok {
		return sink, fmt.Errorf("invalid Index property type %T", props["Index"].Value())
	}
	sink.Index = index

	// Name is optional on the wire, an unnamed sink can never be tracked
	if name, ok := props["Name"].Value().(string); ok {
		sink.Name = name
	}

	if volume, ok := props["Volume"].Value().([]uint32); ok {
		sink.Volume = Volume(volume)
	}

	if mute, ok := props["Mute"].Value().(bool); ok {
		sink.Mute = mute
	}

	return sink, nil
}
