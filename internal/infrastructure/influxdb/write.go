package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementClimate is the measurement every climate sample is written to.
const MeasurementClimate = "climate"

// ClimateSample is one set of readings from one thing.
type ClimateSample struct {
	ThingName  string
	CustomName string
	Time       time.Time

	// Values maps field names (snake_case) to readings. Booleans are
	// recorded as 0/1 by the caller.
	Values map[string]float64
}

// newClimatePoint returns nil when the sample carries nothing to record.
func newClimatePoint(s ClimateSample) *write.Point {
	if s.ThingName == "" || len(s.Values) == 0 {
		return nil
	}
	tags := map[string]string{"thing": s.ThingName}
	if s.CustomName != "" {
		tags["name"] = s.CustomName
	}
	fields := make(map[string]any, len(s.Values))
	for k, v := range s.Values {
		fields[k] = v
	}
	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(MeasurementClimate, tags, fields, ts)
}

// WriteClimate queues a climate sample. Samples without values, and
// writes after Close, are dropped.
func (c *Client) WriteClimate(s ClimateSample) {
	if !c.IsConnected() {
		return
	}
	if p := newClimatePoint(s); p != nil {
		c.writeAPI.WritePoint(p)
	}
}

// WriteBridgeEvent records a bridge lifecycle event (login, connection
// lost, logout) so gaps in the climate series can be explained.
func (c *Client) WriteBridgeEvent(event string, ts time.Time) {
	if !c.IsConnected() || event == "" {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint("bridge_events",
		map[string]string{"event": event},
		map[string]any{"count": 1},
		ts))
}
