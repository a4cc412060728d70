// Package metrics registers the service's Prometheus collectors and exposes
// typed recording methods for the circle registry, the event broadcaster,
// the score cache and the HTTP layer.
package metrics
