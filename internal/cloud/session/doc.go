// Package session implements the controller that owns one account's cloud
// session.
//
// The Controller drives the credential pipeline, builds the device
// directory, opens and supervises the messaging session, and exposes the
// device read/write operations the rest of the process uses:
//
//	LoggedOut --Login--> LoggingIn --ok--> Ready
//	    ^                    |               |
//	    |<-------fail--------+               |
//	    +<------Logout / connection lost-----+
//
// Start runs a supervised login: a failed attempt is retried after a fixed
// delay until the consecutive failure limit is reached, at which point the
// terminal error is reported once and retrying stops. A lost connection
// schedules exactly one delayed re-login; that is the only place automatic
// reconnection starts. Login, Logout and retries are serialised, and a
// Logout invalidates every in-flight login and pending retry.
package session
