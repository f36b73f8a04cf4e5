// Package handlers implements the per-kind asset handlers: the strategy
// objects that know how to build, publish and existence-check one manifest
// entry against its destination system.
package handlers

import (
	"context"

	"github.com/input-output-hk/catalyst-forge-libs/fs"

	"github.com/input-output-hk/catalyst-forge-libs/assets/awsapi"
	asseterrors "github.com/input-output-hk/catalyst-forge-libs/assets/errors"
	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/docker"
	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/shell"
	"github.com/input-output-hk/catalyst-forge-libs/assets/manifest"
)

// AssetHandler is the common capability set of all asset kinds.
type AssetHandler interface {
	// Build produces the publishable artifact locally
	Build(ctx context.Context) error

	// Publish materializes the artifact at its destination; it is a no-op
	// when the destination already holds it
	Publish(ctx context.Context, opts PublishOptions) error

	// IsPublished reports whether the destination already holds the artifact
	IsPublished(ctx context.Context) (bool, error)
}

// PublishOptions modify a publish pass.
type PublishOptions struct {
	// AllowCrossAccount permits uploading to a bucket that is no longer
	// owned by the expected account. Enabled by DefaultPublishOptions.
	AllowCrossAccount bool
}

// DefaultPublishOptions returns the options used when the caller specifies
// nothing.
func DefaultPublishOptions() PublishOptions {
	return PublishOptions{AllowCrossAccount: true}
}

// Host is the shared context injected into every handler for one publishing
// session: collaborator clients, session-scoped caches, the cooperative
// abort flag and the event emission callback. Hosts are never shared between
// sessions, so concurrent publishers cannot leak cache state into each other.
type Host struct {
	// Aws is the entry point for all AWS operations
	Aws awsapi.Client

	// FS is the filesystem used for packaging and the package cache
	FS fs.Filesystem

	// Docker hands out logged-in container build backends
	Docker *docker.Factory

	// Buckets caches destination bucket metadata for the session
	Buckets *BucketCache

	// Aborted reports the publisher's live abort flag
	Aborted func() bool

	// Emit publishes a progress event
	Emit shell.EventPublisher
}

// Options configure handler construction.
type Options struct {
	// OutputDestination selects where subprocess output goes
	OutputDestination shell.OutputDestination
}

// New constructs the handler for a manifest entry, dispatching on its kind.
func New(m *manifest.Manifest, entry *manifest.Entry, host *Host, opts Options) (AssetHandler, error) {
	switch entry.Kind {
	case manifest.KindFile:
		return newFileHandler(m.Directory, entry, host, opts), nil
	case manifest.KindContainerImage:
		return newImageHandler(m.Directory, entry, host, opts), nil
	default:
		return nil, asseterrors.NewError("handler", asseterrors.ErrUnknownAssetKind).
			WithAssetID(entry.ID.String())
	}
}

// clientOptions maps a destination's credential context onto client options.
func clientOptions(d manifest.Destination) awsapi.ClientOptions {
	return awsapi.ClientOptions{
		Region:                      d.Region,
		AssumeRoleARN:               d.AssumeRoleARN,
		AssumeRoleExternalID:        d.AssumeRoleExternalID,
		AssumeRoleAdditionalOptions: d.AssumeRoleAdditionalOptions,
	}
}
