// Package events carries lending circle state changes from the registry to
// observers. Broadcaster fans each published event out to every current
// subscriber through a bounded per-subscriber queue, so publishing never
// waits on delivery.
package events
