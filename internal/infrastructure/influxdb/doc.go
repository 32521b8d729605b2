// Package influxdb writes auth core telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Two measurements
// are produced:
//   - auth_event: one point per login, logout, refresh, lockout or
//     registration, tagged with action and outcome
//   - token_purge: the number of rows deleted by each token sweep
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteAuthEvent("LOGIN", "SUCCESS", time.Now())
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval).
// Failures are delivered asynchronously to the SetOnError callback.
// Connection and health check errors are returned directly.
package influxdb
