//go:build !unix

package runner

import (
	"os"
	"os/exec"
)

// setProcessGroup is a no-op where process groups are unavailable; the
// default cancellation kills only the direct child.
func setProcessGroup(*exec.Cmd) {}

func exitSignal(*os.ProcessState) string { return "" }
