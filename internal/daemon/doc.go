// Package daemon provides the main orchestration for volume-sync.
// It coordinates the audio server connection, the sink event subscription,
// the volume sync dispatcher and configuration hot-reload.
package daemon
