// Package api implements the resilient HTTP client for the Agent Orchestra
// backend.
//
// # Overview
//
// Every outbound call goes through a single request path that injects the
// bearer token, enforces a per-call wall-clock timeout, times the
// request/response cycle, and retries transient failures with exponential
// backoff. Failures always surface as *Error so callers can branch on one
// shape: status 401 forces re-authentication, status 403 is a permission
// denial, and Retryable signals that the client already retried.
//
// # Operations
//
//   - Login / Refresh / Logout: credential lifecycle against /auth
//   - ExecuteAgentTask / ExecuteWorkflow: /copilotkit/actions dispatch
//   - SendMessages: /copilotkit/messages chat turn
//   - Health: backend liveness probe (short timeout)
//
// # Retry policy
//
// The delay before retry n is min(base * factor^(n-1), maxDelay). Only
// transport failures and HTTP 408/429/500/502/503/504 are retried; all
// other statuses are terminal.
package api
