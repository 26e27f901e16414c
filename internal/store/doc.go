// Package store defines the persistence contract for commands and the errors
// every backend reports. Backends live under internal/platform; this package
// stays free of any database technology.
package store
