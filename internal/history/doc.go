// Package history keeps a local log of air conditioner states in SQLite.
//
// A row is written for every status update received from the cloud and for
// every command accepted from the local bus or API, so the last known
// states survive restarts and cloud outages.
package history
