// Package memory provides the in-process command store used when no durable
// database is configured or reachable. Records live only as long as the
// process.
package memory
