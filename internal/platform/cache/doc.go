// Package cache stores computed credit scores keyed by a fingerprint of the
// financial profile they were computed from. A Redis implementation is used
// when configured; otherwise a no-op cache keeps the service behaviour
// identical minus the caching.
package cache
