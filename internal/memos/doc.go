// Package memos enriches new commands with context retrieved from a MemOS
// semantic memory server.
//
// Enrichment is best effort: network failures, timeouts, error statuses and
// malformed responses leave the command input unchanged and are reported in
// the returned Meta instead of as errors.
package memos
