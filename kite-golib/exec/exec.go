package exec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Cmd is os/exec.Cmd
type Cmd = exec.Cmd

// LookPath is os/exec.LookPath
var LookPath = exec.LookPath

// Command is os/exec.CommandContext
func Command(ctx context.Context, name string, arg ...string) *Cmd {
	return exec.CommandContext(ctx, name, arg...)
}

// Output runs the command and returns its stdout. On failure the error includes
// the trimmed stderr of the process.
func Output(ctx context.Context, name string, arg ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := Command(ctx, name, arg...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s: %v", name, err)
		}
		return nil, fmt.Errorf("%s: %v: %s", name, err, msg)
	}
	return out, nil
}
