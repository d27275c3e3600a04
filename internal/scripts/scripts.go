// Package scripts runs the user-declared external scripts invoked
// during linking and legacy-package download: build-tool config
// generation and library-export inference (§6 "External script
// contract"). Argument parsing and interactive behavior belong to the
// CLI layer; this package only executes a resolved script path.
package scripts

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/wisp-pm/wisp/internal/errors"
)

// Well-known script aliases referenced by the core.
const (
	RobloxSyncConfigGenerator = "roblox_sync_config_generator"
	SourcemapGenerator        = "sourcemap_generator"
)

// Runner executes a script by its resolved filesystem path, closing
// stdin, capturing stdout, and logging stderr line-by-line through the
// supplied sink.
type Runner struct {
	// StderrSink receives each stderr line once the script has exited;
	// nil discards it.
	StderrSink func(line string)
}

// Run executes path with args, returning captured stdout. A non-zero
// exit is reported as an error carrying stderr's contents.
func (r Runner) Run(ctx context.Context, path string, args ...string) ([]byte, error) {
	const op = errors.Op("scripts.Run")

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = nil

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if r.StderrSink != nil && stderr.Len() > 0 {
		for _, line := range strings.Split(strings.TrimRight(stderr.String(), "\n"), "\n") {
			r.StderrSink(line)
		}
	}
	if err != nil {
		return nil, errors.E(op, errors.Link, path, err)
	}
	return stdout.Bytes(), nil
}
