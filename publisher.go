// Package assets publishes the file and container image assets referenced by
// a deployment manifest to their destinations: files and directory archives
// to S3 buckets, container images to ECR repositories. Publishing is
// idempotent; destinations that already hold an asset are skipped.
package assets

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/input-output-hk/catalyst-forge-libs/assets/awsapi"
	asseterrors "github.com/input-output-hk/catalyst-forge-libs/assets/errors"
	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/docker"
	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/handlers"
	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/limiter"
	"github.com/input-output-hk/catalyst-forge-libs/assets/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/assets/progress"
)

// MaxPublishParallelism bounds the number of assets worked on concurrently
// when parallel publishing is enabled.
const MaxPublishParallelism = 20

// FailedAsset records one asset that could not be published.
type FailedAsset struct {
	// Asset is the entry that failed
	Asset *manifest.Entry

	// Error is the failure cause
	Error error
}

// AssetPublisher drives one publishing pass over a manifest. It is safe for
// concurrent use by its own parallel mode only; external callers should not
// share a publisher across passes, because per-session caches (bucket
// metadata, registry logins, packaged archives) are scoped to it.
type AssetPublisher struct {
	manifest *manifest.Manifest
	aws      awsapi.Client
	opts     options

	docker  *docker.Factory
	buckets *handlers.BucketCache

	mu           sync.Mutex
	handlerCache map[string]handlers.AssetHandler
	failures     []FailedAsset
	completed    int
	total        int
	message      string
	currentAsset *manifest.Entry

	aborted atomic.Bool
}

// NewAssetPublisher creates a publisher for the given manifest.
func NewAssetPublisher(m *manifest.Manifest, aws awsapi.Client, opts ...Option) (*AssetPublisher, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &AssetPublisher{
		manifest:     m,
		aws:          aws,
		opts:         o,
		docker:       docker.NewFactory(o.fsys),
		buckets:      handlers.NewBucketCache(),
		handlerCache: make(map[string]handlers.AssetHandler),
		total:        m.Len(),
	}, nil
}

// Publish builds and publishes every asset in the manifest. Individual asset
// failures do not stop the pass; they are collected and, when failing on
// error is enabled, reported as one aggregate error at the end.
func (p *AssetPublisher) Publish(ctx context.Context, opts ...PublishOption) error {
	po := defaultPublishOptions()
	for _, opt := range opts {
		opt(&po)
	}
	hpo := handlers.PublishOptions{AllowCrossAccount: po.allowCrossAccount}

	if p.opts.parallel {
		p.publishParallel(ctx, hpo)
	} else {
		for _, entry := range p.manifest.Entries() {
			if !p.publishAsset(ctx, entry, hpo) {
				break
			}
		}
	}

	return p.failureError()
}

// publishParallel fans the manifest out over a bounded worker pool and waits
// for every submitted asset to settle.
func (p *AssetPublisher) publishParallel(ctx context.Context, po handlers.PublishOptions) {
	lim := limiter.New(MaxPublishParallelism)
	defer lim.Dispose()

	results := make([]<-chan error, 0, p.manifest.Len())
	for _, entry := range p.manifest.Entries() {
		results = append(results, lim.Submit(func() error {
			p.publishAsset(ctx, entry, po)
			return nil
		}))
	}
	for _, done := range results {
		<-done
	}
}

// BuildEntry builds a single entry, emitting the same progress events as a
// full pass. Returns false when the listener aborted the publisher.
func (p *AssetPublisher) BuildEntry(ctx context.Context, entry *manifest.Entry) bool {
	return p.step(entry, "Building", "Built", func(h handlers.AssetHandler) error {
		return h.Build(ctx)
	})
}

// PublishEntry publishes a single entry, emitting the same progress events as
// a full pass. Returns false when the listener aborted the publisher.
func (p *AssetPublisher) PublishEntry(ctx context.Context, entry *manifest.Entry, opts ...PublishOption) bool {
	po := defaultPublishOptions()
	for _, opt := range opts {
		opt(&po)
	}
	return p.step(entry, "Publishing", "Published", func(h handlers.AssetHandler) error {
		return h.Publish(ctx, handlers.PublishOptions{AllowCrossAccount: po.allowCrossAccount})
	})
}

// IsEntryPublished reports whether the entry's destination already holds the
// asset, without building or publishing anything.
func (p *AssetPublisher) IsEntryPublished(ctx context.Context, entry *manifest.Entry) (bool, error) {
	handler, err := p.handlerFor(entry)
	if err != nil {
		return false, err
	}
	return handler.IsPublished(ctx)
}

// Abort requests a cooperative stop. Work already in flight finishes its
// current step; nothing new is started.
func (p *AssetPublisher) Abort() {
	p.aborted.Store(true)
}

// HasFailures reports whether any asset failed so far.
func (p *AssetPublisher) HasFailures() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.failures) > 0
}

// Failures returns the failed assets collected so far.
func (p *AssetPublisher) Failures() []FailedAsset {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FailedAsset, len(p.failures))
	copy(out, p.failures)
	return out
}

// PercentComplete reports publishing progress as a whole percentage.
func (p *AssetPublisher) PercentComplete() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.percentLocked()
}

// publishAsset runs one asset through build and publish, converting the
// outcome into progress events and the failure list. The return value tells
// a serial pass whether to continue with the next asset.
func (p *AssetPublisher) publishAsset(ctx context.Context, entry *manifest.Entry, po handlers.PublishOptions) bool {
	return p.step(entry, "Publishing", "Published", func(h handlers.AssetHandler) error {
		if p.opts.buildAssets {
			if err := h.Build(ctx); err != nil {
				return err
			}
		}
		if p.opts.publishAssets {
			if err := h.Publish(ctx, po); err != nil {
				return err
			}
		}
		return nil
	})
}

// step is the shared skeleton of every per-asset operation: start event,
// handler invocation, completion accounting, success or failure event. The
// abort flag is re-checked after every emission so a listener can stop the
// pass from its event callback.
func (p *AssetPublisher) step(entry *manifest.Entry, startVerb, doneVerb string, fn func(handlers.AssetHandler) error) bool {
	id := entry.ID.String()
	if p.progressEvent(entry, progress.EventStart, startVerb+" "+id) {
		return false
	}

	err := p.runStep(entry, fn)
	if err == nil && p.aborted.Load() {
		err = asseterrors.ErrAborted
	}

	if err != nil {
		p.mu.Lock()
		p.failures = append(p.failures, FailedAsset{Asset: entry, Error: err})
		p.completed++
		p.mu.Unlock()
		return !p.progressEvent(entry, progress.EventFail, err.Error())
	}

	p.mu.Lock()
	p.completed++
	p.mu.Unlock()
	return !p.progressEvent(entry, progress.EventSuccess, doneVerb+" "+id)
}

func (p *AssetPublisher) runStep(entry *manifest.Entry, fn func(handlers.AssetHandler) error) error {
	handler, err := p.handlerFor(entry)
	if err != nil {
		return err
	}
	return fn(handler)
}

// handlerFor returns the cached handler for an entry, creating it on first
// use. Handlers are cached because they memoize destination state (resolved
// placeholders, existence probes) across build and publish.
func (p *AssetPublisher) handlerFor(entry *manifest.Entry) (handlers.AssetHandler, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := entry.ID.String()
	if handler, ok := p.handlerCache[key]; ok {
		return handler, nil
	}

	host := &handlers.Host{
		Aws:     p.aws,
		FS:      p.opts.fsys,
		Docker:  p.docker,
		Buckets: p.buckets,
		Aborted: p.aborted.Load,
		Emit: func(eventType progress.EventType, message string) {
			p.progressEvent(entry, eventType, message)
		},
	}

	handler, err := handlers.New(p.manifest, entry, host, handlers.Options{
		OutputDestination: p.opts.output,
	})
	if err != nil {
		return nil, err
	}
	p.handlerCache[key] = handler
	return handler, nil
}

// progressEvent records the message, notifies the listener and reports the
// abort flag as it stands after the listener returned.
func (p *AssetPublisher) progressEvent(entry *manifest.Entry, eventType progress.EventType, message string) bool {
	p.mu.Lock()
	p.message = message
	if entry != nil {
		p.currentAsset = entry
	}
	event := progress.Event{
		Message:         message,
		CurrentAsset:    p.currentAsset,
		PercentComplete: p.percentLocked(),
	}
	p.mu.Unlock()

	if p.opts.listener != nil {
		p.opts.listener.OnPublishEvent(eventType, event)
	}
	return p.aborted.Load()
}

// percentLocked computes progress; an empty manifest is complete by
// definition. Caller holds mu.
func (p *AssetPublisher) percentLocked() int {
	if p.total == 0 {
		return 100
	}
	return (p.completed * 100) / p.total
}

// failureError converts the failure list into the aggregate error returned
// by Publish, honoring the fail-on-error option.
func (p *AssetPublisher) failureError() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.failures) == 0 || !p.opts.failOnError {
		return nil
	}
	messages := make([]string, len(p.failures))
	for i, failure := range p.failures {
		messages[i] = failure.Error.Error()
	}
	return &asseterrors.PublishError{Messages: messages}
}
