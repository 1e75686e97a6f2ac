// Package history persists recording session bookkeeping in SQLite.
//
// The controller is short-lived while the daemon session it starts is
// not, so the kind of the most recent recording has to outlive the
// process: the save path reads it back to choose the output filename
// prefix. The store also backs the CLI's recent-session listing.
package history
