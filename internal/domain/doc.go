// Package domain contains the core entities of the command queue: the Command
// record, its status state machine and the validated inputs accepted by the
// store. It is independent of any storage or delivery mechanism.
package domain
