package scripts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-pm/wisp/internal/scripts"
)

func TestRunCapturesStdout(t *testing.T) {
	r := scripts.Runner{}
	out, err := r.Run(context.Background(), "/bin/sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestRunCapturesStderrViaSink(t *testing.T) {
	var lines []string
	r := scripts.Runner{StderrSink: func(line string) { lines = append(lines, line) }}

	_, err := r.Run(context.Background(), "/bin/sh", "-c", "echo oops 1>&2")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "oops", lines[0])
}

func TestRunNonZeroExitIsError(t *testing.T) {
	r := scripts.Runner{}
	_, err := r.Run(context.Background(), "/bin/sh", "-c", "exit 1")
	assert.Error(t, err)
}

func TestRunMissingExecutableIsError(t *testing.T) {
	r := scripts.Runner{}
	_, err := r.Run(context.Background(), "/no/such/binary-here")
	assert.Error(t, err)
}
