// Package trace defines the recording engine contract and the artifact
// naming rules shared by the controller, the history store, and the CLI.
//
// The Engine interface is the only surface callers touch: start, stop,
// dump, activity probe, and category listing. Filename helpers render
// the <prefix>-<board>-<buildId>-<timestamp>.<ext> grammar and the
// recovered-* variant used after crash recovery.
package trace
