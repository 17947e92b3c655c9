// ABOUTME: Package doc for the console controller
// ABOUTME: Describes how events, store mutations, and API calls are wired

// Package console connects the pieces: backend events mutate the state
// store, operator commands call the API with store bookkeeping around them,
// and approval requests flow through the prompter and back to the backend.
//
// The controller depends on narrow interfaces rather than the concrete API
// client and realtime manager, so flows are testable with scripted fakes.
package console
