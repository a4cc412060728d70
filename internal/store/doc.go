// Package store defines the persistence interfaces for users, lending circles
// and financial goals, the errors every implementation returns, and the
// transaction helper shared by the SQL implementations.
package store
