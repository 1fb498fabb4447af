// Package thing holds the in-memory catalogue of climate devices ("things")
// owned by the cloud account.
//
// Each Thing carries two independently replaced payload slots: the
// registration payload (model, firmware, packed setpoint range) and the live
// status payload (power, mode, temperatures, fan speed, ...). Inbound
// messages replace a slot wholesale with a single atomic pointer swap, so
// readers never observe a half-applied payload and no per-field locking is
// needed.
//
// Field reads go through a typed accessor table (see Fields). A field whose
// slot has never arrived, that is absent from the latest payload, or whose
// name is not in the table reads as unknown (ok == false). Substituting a
// default is left to the caller.
package thing
