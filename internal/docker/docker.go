// Package docker is the container build backend: a thin wrapper around an
// external container tool driven as a subprocess, plus per-registry login
// handling shared across all image assets of one publishing session.
package docker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/shell"
	"github.com/input-output-hk/catalyst-forge-libs/assets/manifest"
)

// EnvDockerCommand overrides the container tool binary when set.
const EnvDockerCommand = "ASSETS_DOCKER"

// getenv is swapped in tests.
var getenv = os.Getenv

// Docker drives one container tool process at a time for a single asset
// handler. All methods shell out to the configured binary.
type Docker struct {
	command   string
	publisher shell.EventPublisher
	output    shell.OutputDestination
}

// New creates a backend publishing subprocess output according to the given
// destination.
func New(publisher shell.EventPublisher, output shell.OutputDestination) *Docker {
	command := getenv(EnvDockerCommand)
	if command == "" {
		command = "docker"
	}
	return &Docker{
		command:   command,
		publisher: publisher,
		output:    output,
	}
}

// BuildOptions carry everything a directory build needs.
type BuildOptions struct {
	// Directory is the build context
	Directory string

	// Tag is the local tag applied to the built image
	Tag string

	// Source carries the docker-specific build options from the manifest
	Source manifest.ImageSource
}

// Exists reports whether the image tag exists in the local daemon.
func (d *Docker) Exists(ctx context.Context, tag string) (bool, error) {
	_, err := d.run(ctx, []string{"inspect", tag}, shell.Options{Quiet: true})
	if err != nil {
		var exitErr *shell.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Build runs a directory build with the manifest's build options applied.
func (d *Docker) Build(ctx context.Context, opts BuildOptions) error {
	args := []string{"build", "--tag", opts.Tag}
	args = append(args, buildFlags(opts.Source)...)
	args = append(args, ".")

	_, err := d.run(ctx, args, shell.Options{WorkingDir: opts.Directory})
	return err
}

// Tag applies a new tag to an existing image.
func (d *Docker) Tag(ctx context.Context, source, target string) error {
	_, err := d.run(ctx, []string{"tag", source, target}, shell.Options{})
	return err
}

// Push pushes a tag to its registry.
func (d *Docker) Push(ctx context.Context, tag string) error {
	_, err := d.run(ctx, []string{"push", tag}, shell.Options{})
	return err
}

// Login authenticates the tool against a registry endpoint. The password is
// passed on stdin, never on the command line.
func (d *Docker) Login(ctx context.Context, username, password, endpoint string) error {
	_, err := d.run(ctx,
		[]string{"login", "--username", username, "--password-stdin", endpoint},
		shell.Options{Input: password})
	return err
}

func (d *Docker) run(ctx context.Context, args []string, opts shell.Options) (string, error) {
	opts.Publisher = d.publisher
	if opts.OutputDestination == "" {
		opts.OutputDestination = d.output
	}
	return runShell(ctx, append([]string{d.command}, args...), opts)
}

// runShell is swapped in tests to intercept subprocess invocations.
var runShell = shell.Run

// buildFlags renders the manifest's image source options as build arguments.
// Map-valued options are emitted in sorted key order so command lines are
// stable.
func buildFlags(source manifest.ImageSource) []string {
	var args []string

	if source.DockerBuildTarget != "" {
		args = append(args, "--target", source.DockerBuildTarget)
	}
	if source.DockerFile != "" {
		args = append(args, "--file", source.DockerFile)
	}
	args = append(args, sortedPairFlags("--build-arg", source.DockerBuildArgs)...)
	args = append(args, sortedPairFlags("--secret", source.DockerBuildSecrets)...)
	if source.DockerBuildSSH != "" {
		args = append(args, "--ssh", source.DockerBuildSSH)
	}
	if source.NetworkMode != "" {
		args = append(args, "--network", source.NetworkMode)
	}
	if source.Platform != "" {
		args = append(args, "--platform", source.Platform)
	}
	for _, output := range source.DockerOutputs {
		args = append(args, "--output", output)
	}
	for _, cache := range source.CacheFrom {
		args = append(args, "--cache-from", cacheFlag(cache))
	}
	if source.CacheTo != nil {
		args = append(args, "--cache-to", cacheFlag(*source.CacheTo))
	}
	if source.CacheDisabled {
		args = append(args, "--no-cache")
	}

	return args
}

func sortedPairFlags(flag string, values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var args []string
	for _, k := range keys {
		args = append(args, flag, fmt.Sprintf("%s=%s", k, values[k]))
	}
	return args
}

// cacheFlag renders a cache spec as "type=registry,ref=...,mode=max".
func cacheFlag(cache manifest.Cache) string {
	out := "type=" + cache.Type
	keys := make([]string, 0, len(cache.Params))
	for k := range cache.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out += fmt.Sprintf(",%s=%s", k, cache.Params[k])
	}
	return out
}
