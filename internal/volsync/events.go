package volsync

import "fmt"

// Event is a unit of work for the Dispatcher.
// It is one of SinkAppeared, SinkChanged, SinkRemoved or ConfigReloaded.
type Event interface {
	fmt.Stringer
	isEvent()
}

// SinkAppeared reports a new sink on the server.
type SinkAppeared struct {
	Index uint32
	Name  string
}

// SinkChanged reports a volume or mute change of a sink.
type SinkChanged struct {
	Index uint32
}

// SinkRemoved reports that a sink is gone.
type SinkRemoved struct {
	Index uint32
}

// ConfigReloaded reports that the configuration file changed.
type ConfigReloaded struct{}

func (SinkAppeared) isEvent()   {}
func (SinkChanged) isEvent()    {}
func (SinkRemoved) isEvent()    {}
func (ConfigReloaded) isEvent() {}

func (e SinkAppeared) String() string { return fmt.Sprintf("SinkAppeared(%d, %q)", e.Index, e.Name) }
func (e SinkChanged) String() string  { return fmt.Sprintf("SinkChanged(%d)", e.Index) }
func (e SinkRemoved) String() string  { return fmt.Sprintf("SinkRemoved(%d)", e.Index) }
func (ConfigReloaded) String() string { return "ConfigReloaded" }
