package assets

import (
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	"github.com/input-output-hk/catalyst-forge-libs/fs/billy"

	"github.com/input-output-hk/catalyst-forge-libs/assets/progress"
)

// Option configures an AssetPublisher.
type Option func(*options)

type options struct {
	listener      progress.Listener
	failOnError   bool
	parallel      bool
	buildAssets   bool
	publishAssets bool
	output        progress.OutputDestination
	fsys          fs.Filesystem
}

func defaultOptions() options {
	return options{
		failOnError:   true,
		buildAssets:   true,
		publishAssets: true,
		output:        progress.OutputStdio,
		fsys:          billy.NewOSFS("/"),
	}
}

// WithProgressListener registers a listener for publishing events.
func WithProgressListener(listener progress.Listener) Option {
	return func(o *options) { o.listener = listener }
}

// WithFailOnError controls whether Publish returns an error when any asset
// failed. Enabled by default; when disabled, failures are only reported
// through Failures.
func WithFailOnError(fail bool) Option {
	return func(o *options) { o.failOnError = fail }
}

// WithParallel publishes assets concurrently instead of one at a time.
func WithParallel(parallel bool) Option {
	return func(o *options) { o.parallel = parallel }
}

// WithBuildAssets controls whether assets are built during a publishing pass.
// Enabled by default.
func WithBuildAssets(build bool) Option {
	return func(o *options) { o.buildAssets = build }
}

// WithPublishAssets controls whether assets are uploaded during a publishing
// pass. Enabled by default; disabling it turns Publish into a build-only pass.
func WithPublishAssets(publish bool) Option {
	return func(o *options) { o.publishAssets = publish }
}

// WithOutputDestination selects where subprocess output of builds and pushes
// goes. Defaults to this process's stdio.
func WithOutputDestination(output progress.OutputDestination) Option {
	return func(o *options) { o.output = output }
}

// WithFS overrides the filesystem used for packaging and configuration files.
func WithFS(fsys fs.Filesystem) Option {
	return func(o *options) { o.fsys = fsys }
}

// PublishOption modifies a single publishing pass.
type PublishOption func(*publishOptions)

type publishOptions struct {
	allowCrossAccount bool
}

func defaultPublishOptions() publishOptions {
	return publishOptions{allowCrossAccount: true}
}

// WithAllowCrossAccount controls whether uploads to a bucket owned by another
// account are permitted. Allowed by default; disabling it makes the publisher
// verify bucket ownership against the destination account first.
func WithAllowCrossAccount(allow bool) PublishOption {
	return func(o *publishOptions) { o.allowCrossAccount = allow }
}
