// Package metrics exposes Prometheus collectors for the auth core.
//
// Collectors live on a private registry so tests can create as many
// Metrics values as they like without duplicate registration panics.
package metrics
