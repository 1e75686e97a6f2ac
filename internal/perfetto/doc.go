// Package perfetto is the recording controller for the perfetto daemon.
//
// It renders recording requests into the daemon's text configuration,
// starts and stops detached capture sessions over the perfetto CLI,
// recovers recordings left behind by crashed sessions, and fetches the
// catalog of supported capture categories. The Engine type implements
// trace.Engine; all daemon interaction goes through a Runner so tests
// can substitute a fake subprocess layer.
package perfetto
