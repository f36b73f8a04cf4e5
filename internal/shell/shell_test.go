package shell_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/shell"
	"github.com/input-output-hk/catalyst-forge-libs/assets/progress"
)

func TestRunCapturesStdout(t *testing.T) {
	t.Parallel()

	out, err := shell.Run(context.Background(),
		[]string{"sh", "-c", "echo hello"},
		shell.Options{Quiet: true})

	require.NoError(t, err)
	assert.Equal(t, "hello", strings.TrimSpace(out))
}

func TestRunNonZeroExit(t *testing.T) {
	t.Parallel()

	_, err := shell.Run(context.Background(),
		[]string{"sh", "-c", "echo oops >&2; exit 3"},
		shell.Options{Quiet: true})

	var exitErr *shell.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "oops", exitErr.Stderr)
	assert.Contains(t, exitErr.Error(), "exited with code 3")
}

func TestRunPassesStdin(t *testing.T) {
	t.Parallel()

	out, err := shell.Run(context.Background(),
		[]string{"cat"},
		shell.Options{Quiet: true, Input: "secret"})

	require.NoError(t, err)
	assert.Equal(t, "secret", out)
}

func TestRunAppliesEnvAndWorkingDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	out, err := shell.Run(context.Background(),
		[]string{"sh", "-c", "echo $GREETING $(pwd)"},
		shell.Options{
			Quiet:      true,
			WorkingDir: dir,
			Env:        map[string]string{"GREETING": "hi"},
		})

	require.NoError(t, err)
	assert.Contains(t, out, "hi")
	assert.Contains(t, out, dir)
}

func TestRunPublishesOutputEvents(t *testing.T) {
	t.Parallel()

	var types []progress.EventType
	var data strings.Builder
	publisher := func(eventType progress.EventType, message string) {
		types = append(types, eventType)
		if eventType == progress.EventShellData {
			data.WriteString(message)
		}
	}

	_, err := shell.Run(context.Background(),
		[]string{"sh", "-c", "echo streamed"},
		shell.Options{
			OutputDestination: shell.OutputPublish,
			Publisher:         publisher,
		})
	require.NoError(t, err)

	assert.Equal(t, progress.EventDebug, types[0])
	assert.Contains(t, types, progress.EventShellOpen)
	assert.Contains(t, types, progress.EventShellClose)
	assert.Contains(t, data.String(), "streamed")
}

func TestRunEmptyCommand(t *testing.T) {
	t.Parallel()

	_, err := shell.Run(context.Background(), nil, shell.Options{})
	assert.Error(t, err)
}
