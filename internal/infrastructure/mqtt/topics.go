package mqtt

import "strings"

// DefaultTopicPrefix is used when mqtt.topic_prefix is empty.
const DefaultTopicPrefix = "authcore"

// Topics builds the auth core's MQTT topic names under a prefix.
//
//	topics := mqtt.NewTopics("authcore")
//	topics.Lockout()      // authcore/events/lockout
//	topics.SystemStatus() // authcore/system/status
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix. Surrounding slashes are
// trimmed and an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of every topic.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// Event returns the topic for a security event kind.
//
// Example: authcore/events/lockout
func (t Topics) Event(kind string) string {
	return t.Prefix() + "/events/" + kind
}

// Lockout is published when an account crosses the failure threshold.
func (t Topics) Lockout() string {
	return t.Event("lockout")
}

// LogoutAll is published when every session of a user is revoked.
func (t Topics) LogoutAll() string {
	return t.Event("logout-all")
}

// SystemStatus carries the retained online/offline status and the LWT.
//
// Example: authcore/system/status
func (t Topics) SystemStatus() string {
	return t.Prefix() + "/system/status"
}

// AllEvents matches every security event.
//
// Pattern: authcore/events/+
func (t Topics) AllEvents() string {
	return t.Prefix() + "/events/+"
}
