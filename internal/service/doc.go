// Package service provides the application-level command operations used by
// the HTTP layer: creation with MemOS enrichment, the status transitions and
// context refresh.
//
// Expected conditions come back as the store and domain errors callers check
// with errors.Is/errors.As (validation, not found, conflict). Anything else
// is wrapped in a *CommandServiceError naming the failed operation.
package service
