// Package config loads the server settings from an optional config.yaml and
// CIRCLES_-prefixed environment variables, applies defaults, and validates the
// result. Redis and AMQP are optional: an empty address or URL leaves the
// score cache and event publisher disabled.
package config
