// ABOUTME: Package doc for the realtime WebSocket connection manager
// ABOUTME: Covers connection lifecycle, queueing, and event dispatch

// Package realtime maintains the WebSocket connection to the orchestration
// backend and fans incoming events out to registered listeners.
//
// # Overview
//
// The manager owns a single connection. Callers interact with it through
// three surfaces:
//
//   - Connect/Disconnect/Suspend/Resume control the connection lifecycle.
//     Connect is idempotent: concurrent callers share one dial attempt.
//   - Send transmits a typed envelope. When the connection is down the
//     envelope is queued and flushed in FIFO order after the next successful
//     connect; nothing is silently dropped.
//   - On/Off register listeners per event type. Dispatch is sequential in
//     arrival order, and a panicking listener never takes down the read loop
//     or its neighbors.
//
// An unexpected close triggers automatic reconnection with a fixed delay, up
// to a configured attempt limit. Deliberate disconnects and suspensions never
// reconnect on their own.
//
// Malformed frames (undecodable JSON, missing type, payloads failing their
// per-type shape check) are logged and dropped without disturbing the
// connection.
package realtime
