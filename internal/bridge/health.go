package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/mqtt"
)

func (b *Bridge) healthLoop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.healthInterval)
	defer ticker.Stop()

	b.PublishHealth()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.PublishHealth()
		}
	}
}

// PublishHealth publishes the current status: healthy while the cloud
// session is connected, degraded otherwise.
func (b *Bridge) PublishHealth() {
	if b.ctrl.IsConnected() {
		b.publishHealth(HealthHealthy, "")
		return
	}
	b.publishHealth(HealthDegraded, "cloud session not connected")
}

func (b *Bridge) publishHealth(status HealthStatus, reason string) {
	if !b.bus.IsConnected() {
		return
	}
	msg := HealthMessage{
		Bridge:         mqtt.ProtocolHitachi,
		Timestamp:      b.now().UTC(),
		Status:         status,
		Version:        b.version,
		DevicesManaged: b.climateCount(),
		CloudConnected: b.ctrl.IsConnected(),
		Reason:         reason,
	}
	if !b.started.IsZero() {
		msg.UptimeSeconds = int64(b.now().Sub(b.started) / time.Second)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("encoding health", "error", err)
		return
	}
	if err := b.bus.Publish(b.topics.Health(mqtt.ProtocolHitachi), data, b.qos, true); err != nil {
		b.log.Warn("publishing health", "error", err)
	}
}

func (b *Bridge) climateCount() int {
	n := 0
	for _, t := range b.ctrl.Devices() {
		if t.IsClimate() {
			n++
		}
	}
	return n
}
