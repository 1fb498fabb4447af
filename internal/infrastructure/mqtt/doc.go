// Package mqtt is the client for the local MQTT bus the climate bridge
// publishes on.
//
// It wraps paho.mqtt.golang with:
//   - automatic reconnection with backoff, restoring tracked subscriptions
//   - a retained last-will on the bridge health topic, so consumers see
//     the bridge go offline if the process dies
//   - panic recovery around message handlers
//   - input validation (topic, QoS, payload size) before touching the broker
//
// This is the process's own bus connection. The cloud broker session lives
// in internal/cloud/iot and never shares a client with this package.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//	err = client.Subscribe(topics.AllCommands(mqtt.ProtocolHitachi), 1, handler)
package mqtt
