// Package api exposes the lending circle, goal, user and credit score
// operations over HTTP, plus the circle event stream over WebSocket.
// Handlers decode and validate requests, call the service layer, and map
// domain errors to status codes through HandleAPIError.
package api
