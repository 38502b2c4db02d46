package pulse

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Signals the client listens for. Device signals cover sinks and sources;
// source signals are dropped in eventFromSignal because the path is not a sink path.
var sinkSignals = []string{
	CoreInterface + ".NewSink",
	CoreInterface + ".SinkRemoved",
	DeviceInterface + ".VolumeUpdated",
	DeviceInterface + ".MuteUpdated",
}

// signalBuffer is the size of the channel godbus delivers signals into.
const signalBuffer = 128

// Subscribe asks the server for sink notifications and calls handler for
// each of them from a single goroutine, in delivery order. Sink appearances
// are reported with the sink name, which is looked up before handler runs;
// a sink that vanishes before the lookup is dropped.
func (c *Client) Subscribe(ctx context.Context, handler EventHandler) error {
	conn, err := c.readyConn()
	if err != nil {
		return err
	}

	signals := make(chan *dbus.Signal, signalBuffer)
	conn.Signal(signals)

	core := conn.Object("", CorePath)
	for _, name := range sinkSignals {
		// An empty object list means "all objects"
		if err := core.CallWithContext(ctx, CoreInterface+".ListenForSignal", 0,
			name, []dbus.ObjectPath{}).Err; err != nil {
			conn.RemoveSignal(signals)
			return fmt.Errorf("failed to subscribe to %s: %w", name, err)
		}
	}

	go c.dispatchSignals(ctx, conn, signals, handler)

	c.logger.Info("subscribed to sink events")
	return nil
}

// dispatchSignals translates signals into events until the context is done
// or the connection terminates.
func (c *Client) dispatchSignals(ctx context.Context, conn *dbus.Conn, signals chan *dbus.Signal, handler EventHandler) {
	defer conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}

			event, ok := eventFromSignal(sig)
			if !ok {
				continue
			}

			if event.Op == OpNew {
				sink, err := c.SinkByIndex(ctx, event.Index)
				if errors.Is(err, ErrNoSuchSink) {
					continue
				}
				if err != nil {
					c.logger.Warn("failed to look up new sink", "index", event.Index, "error", err)
					continue
				}
				event.Name = sink.Name
			}

			c.logger.Debug("sink event", "op", event.Op.String(), "index", event.Index)
			handler(event)
		}
	}
}

// eventFromSignal converts a PulseAudio signal into a sink Event.
// Returns false for signals that do not concern a sink.
func eventFromSignal(sig *dbus.Signal) (Event, bool) {
	if sig == nil {
		return Event{}, false
	}

	switch sig.Name {
	case CoreInterface + ".NewSink", CoreInterface + ".SinkRemoved":
		if len(sig.Body) < 1 {
			return Event{}, false
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok {
			return Event{}, false
		}
		index, err := SinkIndexFromPath(path)
		if err != nil {
			return Event{}, false
		}
		op := OpNew
		if sig.Name == CoreInterface+".SinkRemoved" {
			op = OpRemoved
		}
		return Event{Op: op, Index: index}, true

	case DeviceInterface + ".VolumeUpdated", DeviceInterface + ".MuteUpdated":
		index, err := SinkIndexFromPath(sig.Path)
		if err != nil {
			return Event{}, false
		}
		return Event{Op: OpChanged, Index: index}, true

	default:
		return Event{}, false
	}
}
