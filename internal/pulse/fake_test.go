package pulse

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"net"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"
)

// fakeServer is a minimal PulseAudio D-Bus peer listening on a unix socket.
// It answers the property and ListenForSignal calls the Client makes and can
// emit sink signals.
type fakeServer struct {
	address string

	mu        sync.Mutex
	sinks     map[uint32]Sink
	listening []string
	conn      *dbus.Conn
	ready     chan struct{}
}

func newFakeServer(t *testing.T, sinks ...Sink) *fakeServer {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pulse.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	s := &fakeServer{
		address: "unix:path=" + path,
		sinks:   make(map[uint32]Sink),
		ready:   make(chan struct{}),
	}
	for _, sink := range sinks {
		s.sinks[sink.Index] = sink
	}

	go s.serve(ln)
	t.Cleanup(s.close)
	return s
}

// serve accepts a single client, authenticates it and answers its calls.
func (s *fakeServer) serve(ln net.Listener) {
	nc, err := ln.Accept()
	if err != nil {
		return
	}

	in := bufio.NewReader(nc)
	if err := serveAuth(in, nc); err != nil {
		_ = nc.Close()
		return
	}

	// Only used for sending: godbus reads on a Conn only after Auth, so
	// incoming messages are decoded from in directly.
	conn, err := dbus.NewConn(nc)
	if err != nil {
		_ = nc.Close()
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	close(s.ready)

	for {
		msg, err := dbus.DecodeMessage(in)
		if err != nil {
			return
		}
		if msg.Type == dbus.TypeMethodCall {
			s.handle(msg)
		}
	}
}

// serveAuth plays the server side of the SASL handshake, accepting EXTERNAL.
func serveAuth(in *bufio.Reader, out io.Writer) error {
	if _, err := in.ReadByte(); err != nil {
		return err
	}

	for {
		line, err := in.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimSuffix(line, "\r\n")

		var reply string
		switch {
		case line == "BEGIN":
			return nil
		case line == "AUTH":
			reply = "REJECTED EXTERNAL"
		case strings.HasPrefix(line, "AUTH EXTERNAL"):
			reply = "OK 0123456789abcdef0123456789abcdef"
		default:
			reply = "ERROR"
		}
		if _, err := io.WriteString(out, reply+"\r\n"); err != nil {
			return err
		}
	}
}

func (s *fakeServer) handle(call *dbus.Message) {
	path, _ := call.Headers[dbus.FieldPath].Value().(dbus.ObjectPath)
	iface, _ := call.Headers[dbus.FieldInterface].Value().(string)
	member, _ := call.Headers[dbus.FieldMember].Value().(string)

	switch iface + "." + member {
	case propertiesInterface + ".Get":
		prop, _ := call.Body[1].(string)
		switch {
		case path == CorePath && prop == "Name":
			s.reply(call, dbus.MakeVariant("pulseaudio"))
		case path == CorePath && prop == "Sinks":
			s.reply(call, dbus.MakeVariant(s.sinkPaths()))
		default:
			s.fail(call, "org.freedesktop.DBus.Error.UnknownProperty")
		}

	case propertiesInterface + ".GetAll":
		sink, ok := s.sinkAtPath(path)
		if !ok {
			s.fail(call, "org.freedesktop.DBus.Error.UnknownObject")
			return
		}
		s.reply(call, map[string]dbus.Variant{
			"Index":  dbus.MakeVariant(sink.Index),
			"Name":   dbus.MakeVariant(sink.Name),
			"Volume": dbus.MakeVariant([]uint32(sink.Volume)),
			"Mute":   dbus.MakeVariant(sink.Mute),
		})

	case propertiesInterface + ".Set":
		variant, _ := call.Body[2].(dbus.Variant)
		volume, _ := variant.Value().([]uint32)
		if !s.setVolume(path, volume) {
			s.fail(call, "org.freedesktop.DBus.Error.UnknownObject")
			return
		}
		s.reply(call)

	case CoreInterface + ".ListenForSignal":
		name, _ := call.Body[0].(string)
		s.mu.Lock()
		s.listening = append(s.listening, name)
		s.mu.Unlock()
		s.reply(call)

	default:
		s.fail(call, "org.freedesktop.DBus.Error.UnknownMethod")
	}
}

func (s *fakeServer) reply(call *dbus.Message, values ...any) {
	msg := &dbus.Message{
		Type: dbus.TypeMethodReply,
		Headers: map[dbus.HeaderField]dbus.Variant{
			dbus.FieldReplySerial: dbus.MakeVariant(call.Serial()),
		},
		Body: values,
	}
	if len(values) > 0 {
		msg.Headers[dbus.FieldSignature] = dbus.MakeVariant(dbus.SignatureOf(values...))
	}
	s.send(msg)
}

func (s *fakeServer) fail(call *dbus.Message, name string) {
	body := []any{fmt.Sprintf("%s failed", name)}
	s.send(&dbus.Message{
		Type: dbus.TypeError,
		Headers: map[dbus.HeaderField]dbus.Variant{
			dbus.FieldReplySerial: dbus.MakeVariant(call.Serial()),
			dbus.FieldErrorName:   dbus.MakeVariant(name),
			dbus.FieldSignature:   dbus.MakeVariant(dbus.SignatureOf(body...)),
		},
		Body: body,
	})
}

func (s *fakeServer) send(msg *dbus.Message) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Send(msg, nil)
	}
}

// emit sends a signal to the client.
func (s *fakeServer) emit(t *testing.T, path dbus.ObjectPath, name string, values ...any) {
	t.Helper()
	<-s.ready
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	require.NoError(t, conn.Emit(path, name, values...))
}

func (s *fakeServer) sinkPaths() []dbus.ObjectPath {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]dbus.ObjectPath, 0, len(s.sinks))
	for _, index := range slices.Sorted(maps.Keys(s.sinks)) {
		paths = append(paths, SinkPath(index))
	}
	return paths
}

func (s *fakeServer) sinkAtPath(path dbus.ObjectPath) (Sink, bool) {
	index, err := SinkIndexFromPath(path)
	if err != nil {
		return Sink{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sink, ok := s.sinks[index]
	return sink, ok
}

func (s *fakeServer) setVolume(path dbus.ObjectPath, volume []uint32) bool {
	index, err := SinkIndexFromPath(path)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sink, ok := s.sinks[index]
	if !ok {
		return false
	}
	sink.Volume = slices.Clone(volume)
	s.sinks[index] = sink
	return true
}

func (s *fakeServer) add(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks[sink.Index] = sink
}

func (s *fakeServer) remove(index uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sinks, index)
}

func (s *fakeServer) volume(index uint32) Volume {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sinks[index].Volume
}

func (s *fakeServer) signals() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.listening)
}

// close drops the client connection.
func (s *fakeServer) close() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
