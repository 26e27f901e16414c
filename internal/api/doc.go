// Package api provides the HTTP handlers for the command queue, the worker
// and MemOS search. Every response is a JSON envelope
// {"ok", "data", "error", "trace_id"}.
package api
