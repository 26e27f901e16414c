// Package runner executes started commands on behalf of the worker.
//
// A Runner never returns an error: every failure is folded into a Result
// whose Text is a human-readable diagnostic, which the worker records with
// Fail. Three backends exist:
//
//   - Noop acknowledges the command without doing anything.
//   - OpenClaw runs the openclaw CLI in its own process group and digests its
//     JSON output.
//   - Gemini sends the same prompt to a hosted Gemini model.
package runner
