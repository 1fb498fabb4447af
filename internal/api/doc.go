// Package api serves the local HTTP and WebSocket interface of the bridge.
//
// Routes live under /api/v1. Devices are addressed by thing name or, when
// no thing has that name, by custom name. The WebSocket at /api/v1/ws
// streams device.state_changed and session.connection_lost events to
// clients subscribed to those channels.
//
//	server, err := api.New(deps)
//	if err != nil {
//	    return err
//	}
//	if err := server.Start(ctx); err != nil {
//	    return err
//	}
//	defer server.Close()
package api
