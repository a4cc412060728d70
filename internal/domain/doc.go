// Package domain holds users and their financial profiles, lending circles
// with their contributions, and financial goals. Circle lifecycle rules
// (open, active, completed, cancelled) and amount checks live on the
// entities themselves; nothing here touches storage or transport.
package domain
