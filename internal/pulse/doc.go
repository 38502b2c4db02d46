// Package pulse is a small client for the PulseAudio native D-Bus protocol.
// It enumerates sinks, reads and sets sink volumes, and delivers sink
// appeared/changed/removed notifications. The server must have
// module-dbus-protocol loaded.
package pulse
