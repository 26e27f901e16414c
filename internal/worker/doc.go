// Package worker drives confirmed commands through execution.
//
// A Worker polls the command store on a fixed interval, starts up to a batch
// of confirmed commands oldest first, hands each to a runner.Runner and
// records the outcome with Complete or Fail. Scheduled ticks never overlap;
// a manual RunOnce may run beside a scheduled tick, and the in-flight set
// plus the store's compare-and-transition keep every command started once.
package worker
