// Package server provides the HTTP API for a dispatch board.
//
// It serves:
//
//   - REST reads: the latest board snapshot at "/api/board"
//   - Server-Sent Events: live snapshots at "/api/sse"
//   - Mutations: assign, unassign and status changes under "/api/journeys/{id}"
//   - Reloads: "POST /api/load", optionally delayed or failed on purpose
//
// Mutations answer 202 with the journey's optimistic local state; the remote
// write continues after the response and a failure shows up as the snapshot's
// error message.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
