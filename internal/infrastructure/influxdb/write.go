package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the auth core.
const (
	MeasurementAuthEvent  = "auth_event"
	MeasurementTokenPurge = "token_purge"
)

// WriteAuthEvent records one authentication event, tagged by action and
// outcome. Usernames are not tagged; per-user history lives in the audit log.
func (c *Client) WriteAuthEvent(action, outcome string, at time.Time) {
	c.queue(MeasurementAuthEvent,
		map[string]string{
			"action":  action,
			"outcome": outcome,
		},
		map[string]any{"count": 1},
		at,
	)
}

// WritePurge records how many expired token rows a sweep deleted.
func (c *Client) WritePurge(deleted int64, at time.Time) {
	c.queue(MeasurementTokenPurge,
		nil,
		map[string]any{"deleted": deleted},
		at,
	)
}

// queue adds a point to for the next batch. Points written after Close
// are dropped.
func (c *Client) queue(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
