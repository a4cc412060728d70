// Package score implements the inclusive credit score: a deterministic
// function from a financial profile to an integer in [300, 850].
package score
