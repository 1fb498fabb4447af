// Package bridge connects the cloud session to the local MQTT bus.
//
// Outbound, every status notification for a climate device becomes a
// retained StateMessage on graylogic/state/hitachi/{thing}, and is handed
// to the optional telemetry and history sinks. Inbound, CommandMessages on
// graylogic/command/hitachi/{thing} are turned into SetField or
// RefreshDevice calls and answered with an AckMessage on
// graylogic/ack/hitachi/{thing}. Bridge health is published, retained, on
// graylogic/health/hitachi.
package bridge
