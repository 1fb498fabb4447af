// Package iot owns the persistent publish/subscribe session to the device
// cloud broker (AWS IoT, MQTT over a SigV4-presigned websocket).
//
// All device traffic is multiplexed over topics of the form
//
//	{hostIdentityId}/{thingName}/{action}/{direction}
//
// with action one of status, registration or control, and direction request
// or response. After connecting, the session subscribes once to
//
//	{hostIdentityId}/+/+/response
//
// and routes each response to the thing.Directory. Responses carry no
// request id: the latest payload for a device always wins, and a control
// acknowledgement triggers a fresh status request rather than being trusted.
//
// Transport lifecycle signals arrive as Events on a channel and drive the
// pure transition function, so the state machine is testable without a
// network. The session never reconnects by itself; a lost connection is
// reported to the notify callback with a nil snapshot and the caller decides
// when to log in again.
package iot
