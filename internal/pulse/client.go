package pulse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
)

// AddressEnv overrides the server address lookup when set.
const AddressEnv = "PULSE_DBUS_SERVER"

// Client is a connection to the PulseAudio D-Bus server.
type Client struct {
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *dbus.Conn
	address string

	state atomic.Int32

	done     chan struct{}
	doneOnce sync.Once
	err      error
}

// NewClient creates a new, unconnected Client.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		logger: logger,
		done:   make(chan struct{}),
	}
}

// SetAddress sets the D-Bus address to dial, skipping the lookup.
func (c *Client) SetAddress(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.address = address
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Done returns a channel that is closed once the connection has terminated.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection terminated, or nil while it is alive.
func (c *Client) Err() error {
	select {
	case <-c.done:
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.err
	default:
		return nil
	}
}

// Connect looks up the server address, dials it and waits until the
// connection is ready. It may only be called once.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return fmt.Errorf("connect called in state %s", c.State())
	}
	c.logger.Debug("connecting to audio server", "state", StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.state.Store(int32(StateFailed))
		return err
	}

	// Reading a core property proves the server answers on this connection
	var name dbus.Variant
	if err := conn.Object("", CorePath).CallWithContext(ctx, propertiesInterface+".Get", 0,
		CoreInterface, "Name").Store(&name); err != nil {
		_ = conn.Close()
		c.state.Store(int32(StateFailed))
		return fmt.Errorf("failed to query audio server: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.state.Store(int32(StateReady))
	go c.watchConnection(conn)

	c.logger.Info("connected to audio server", "server", name.Value(), "state", StateReady)
	return nil
}

// dial resolves the server address and opens an authenticated peer connection.
func (c *Client) dial(ctx context.Context) (*dbus.Conn, error) {
	c.mu.RLock()
	address := c.address
	c.mu.RUnlock()

	if address == "" {
		var err error
		address, err = LookupAddress(ctx)
		if err != nil {
			return nil, err
		}
	}
	c.logger.Debug("dialing audio server", "address", address)

	conn, err := dbus.Dial(address, dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to dial audio server at %s: %w", address, err)
	}

	// Peer-to-peer connection: authenticate, but there is no bus to say Hello to
	if err := conn.Auth(nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to authenticate with audio server: %w", err)
	}

	return conn, nil
}

// LookupAddress returns the PulseAudio D-Bus server address, taken from
// PULSE_DBUS_SERVER or asked from the server lookup service on the session bus.
func LookupAddress(ctx context.Context) (string, error) {
	if address := os.Getenv(AddressEnv); address != "" {
		return address, nil
	}

	bus, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer func() { _ = bus.Close() }()

	var address dbus.Variant
	err = bus.Object(lookupBusName, lookupPath).CallWithContext(ctx, propertiesInterface+".Get", 0,
		lookupInterface, "Address").Store(&address)
	if err != nil {
		return "", fmt.Errorf("failed to look up audio server address (is module-dbus-protocol loaded?): %w", err)
	}

	s, ok := address.Value().(string)
	if !ok || s == "" {
		return "", fmt.Errorf("invalid audio server address %v", address.Value())
	}
	return s, nil
}

// watchConnection marks the client terminated once the connection closes.
func (c *Client) watchConnection(conn *dbus.Conn) {
	<-conn.Context().Done()
	c.terminate(errors.New("audio server connection closed"))
}

// terminate records the termination cause and closes Done.
func (c *Client) terminate(cause error) {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		c.err = cause
		c.mu.Unlock()
		c.state.Store(int32(StateTerminated))
		c.logger.Debug("audio server connection terminated", "cause", cause)
		close(c.done)
	})
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil
	}
	c.terminate(errors.New("client closed"))
	return conn.Close()
}

// readyConn returns the connection if the client is ready.
func (c *Client) readyConn() (*dbus.Conn, error) {
	if c.State() != StateReady {
		return nil, ErrNotReady
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn, nil
}

// ListSinks returns all sinks currently known to the server.
func (c *Client) ListSinks(ctx context.Context) ([]Sink, error) {
	conn, err := c.readyConn()
	if err != nil {
		return nil, err
	}

	var paths dbus.Variant
	if err := conn.Object("", CorePath).CallWithContext(ctx, propertiesInterface+".Get", 0,
		CoreInterface, "Sinks").Store(&paths); err != nil {
		return nil, fmt.Errorf("failed to list sinks: %w", err)
	}

	objects, ok := paths.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("invalid Sinks property type %T", paths.Value())
	}

	sinks := make([]Sink, 0, len(objects))
	for _, path := range objects {
		sink, err := c.sinkAt(ctx, conn, path)
		if errors.Is(err, ErrNoSuchSink) {
			// Removed while we were enumerating
			continue
		}
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}

	c.logger.Debug("listed sinks", "count", len(sinks))
	return sinks, nil
}

// SinkByIndex returns the current state of a single sink.
// Returns ErrNoSuchSink if the sink does not exist.
func (c *Client) SinkByIndex(ctx context.Context, index uint32) (Sink, error) {
	conn, err := c.readyConn()
	if err != nil {
		return Sink{}, err
	}
	return c.sinkAt(ctx, conn, SinkPath(index))
}

// sinkAt fetches all device properties of the sink object at path.
func (c *Client) sinkAt(ctx context.Context, conn *dbus.Conn, path dbus.ObjectPath) (Sink, error) {
	var props map[string]dbus.Variant
	err := conn.Object("", path).CallWithContext(ctx, propertiesInterface+".GetAll", 0,
		DeviceInterface).Store(&props)
	if err != nil {
		if isNotFound(err) {
			return Sink{}, fmt.Errorf("%s: %w", path, ErrNoSuchSink)
		}
		return Sink{}, fmt.Errorf("failed to get sink %s: %w", path, err)
	}

	sink, err := sinkFromProperties(props)
	if err != nil {
		return Sink{}, fmt.Errorf("sink %s: %w", path, err)
	}
	return sink, nil
}

// SetSinkVolume sets the per-channel volume of a sink.
func (c *Client) SetSinkVolume(ctx context.Context, index uint32, volume Volume) error {
	conn, err := c.readyConn()
	if err != nil {
		return err
	}

	err = conn.Object("", SinkPath(index)).CallWithContext(ctx, propertiesInterface+".Set", 0,
		DeviceInterface, "Volume", dbus.MakeVariant([]uint32(volume))).Err
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("sink %d: %w", index, ErrNoSuchSink)
		}
		return fmt.Errorf("failed to set volume of sink %d: %w", index, err)
	}

	c.logger.Debug("set sink volume", "index", index, "volume", volume.String())
	return nil
}

// isNotFound reports whether a D-Bus error means the object does not exist.
func isNotFound(err error) bool {
	var dbusErr dbus.Error
	if !errors.As(err, &dbusErr) {
		var dbusErrPtr *dbus.Error
		if !errors.As(err, &dbusErrPtr) || dbusErrPtr == nil {
			return false
		}
		dbusErr = *dbusErrPtr
	}

	switch dbusErr.Name {
	case "org.freedesktop.DBus.Error.UnknownObject",
		"org.freedesktop.DBus.Error.UnknownMethod",
		"org.freedesktop.DBus.Error.UnknownInterface",
		"org.PulseAudio.Core1.NotFoundError":
		return true
	default:
		return false
	}
}
