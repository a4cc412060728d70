// Package service contains the application use cases. It orchestrates domain
// entities and the persistence interfaces from internal/store.
//
// Key components:
//
//   - CircleRegistry owns lending circle mutations. All commands against one
//     circle are serialized by a per-circle lock; distinct circles proceed
//     concurrently. Successful mutations are published as circle events.
//   - GoalTracker creates financial goals and applies owner contributions.
//   - ScoreService computes the inclusive credit score for a user's stored
//     financial profile, caching results by profile fingerprint.
//   - UserService handles registration, login and profile updates.
//
// Store errors are translated to the domain taxonomy (domain.ErrNotFound,
// domain.ErrInvalidTransition, ...) so the API layer maps a single set of
// sentinels to HTTP responses.
package service
