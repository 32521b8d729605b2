// Package mqtt publishes auth core security notifications over MQTT.
//
// The client is publish-only. It emits:
//   - {prefix}/events/lockout when an account locks after repeated failures
//   - {prefix}/events/logout-all when every session of a user is revoked
//   - {prefix}/system/status, retained, with an LWT for crash detection
//
// Notifications are informational. Token revocation state lives only in
// the SQLite store. Subscribers must not treat these messages as a
// revocation list.
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) outside local development
//   - Payloads carry usernames and user IDs but never tokens
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if errors.Is(err, mqtt.ErrDisabled) {
//	    // notifications off
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(client.Topics().Lockout(), payload)
package mqtt
