package assets_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	assets "github.com/input-output-hk/catalyst-forge-libs/assets"
	asseterrors "github.com/input-output-hk/catalyst-forge-libs/assets/errors"
	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/assets/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/assets/progress"
)

// recordedEvent is one listener callback.
type recordedEvent struct {
	Type  progress.EventType
	Event progress.Event
}

// recorder collects events and optionally reacts to one of them.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent

	// React, when set, runs synchronously inside the callback
	React func(eventType progress.EventType, event progress.Event)
}

func (r *recorder) OnPublishEvent(eventType progress.EventType, event progress.Event) {
	r.mu.Lock()
	r.events = append(r.events, recordedEvent{Type: eventType, Event: event})
	r.mu.Unlock()
	if r.React != nil {
		r.React(eventType, event)
	}
}

func (r *recorder) byType(eventType progress.EventType) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// twoFileManifest loads a manifest with two file assets, each to its own
// bucket, from an in-memory filesystem that also holds the source files.
func twoFileManifest(t *testing.T, fsys *billy.FS) *manifest.Manifest {
	t.Helper()

	doc := `{
		"version": "1.0",
		"files": {
			"asset1": {
				"source": {"path": "one.txt"},
				"destinations": {
					"dest": {"bucketName": "bucket_one", "objectKey": "key_one"}
				}
			},
			"asset2": {
				"source": {"path": "two.txt"},
				"destinations": {
					"dest": {"bucketName": "bucket_two", "objectKey": "key_two"}
				}
			}
		}
	}`
	require.NoError(t, fsys.WriteFile("/work/assets.json", []byte(doc), 0o644))
	require.NoError(t, fsys.WriteFile("/work/one.txt", []byte("one"), 0o644))
	require.NoError(t, fsys.WriteFile("/work/two.txt", []byte("two"), 0o644))

	m, err := manifest.FromFS(fsys, "/work")
	require.NoError(t, err)
	return m
}

// foundListing answers every existence probe with a real object, so assets
// count as already published.
func foundListing(client *testutil.MockAws) {
	client.S3.ListObjectsV2Func = func(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
		return &s3.ListObjectsV2Output{
			Contents: []s3types.Object{{Key: params.Prefix, Size: aws.Int64(4096)}},
		}, nil
	}
}

func TestPublishAlreadyPublishedAssets(t *testing.T) {
	t.Parallel()

	fsys := billy.NewInMemoryFS()
	m := twoFileManifest(t, fsys)

	client := testutil.NewMockAws()
	foundListing(client)

	var uploads int
	client.S3.UploadFunc = func(context.Context, *s3.PutObjectInput) error {
		uploads++
		return nil
	}

	listener := &recorder{}
	publisher, err := assets.NewAssetPublisher(m, client,
		assets.WithFS(fsys),
		assets.WithProgressListener(listener),
	)
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(context.Background()))

	assert.Zero(t, uploads)
	assert.False(t, publisher.HasFailures())
	starts := listener.byType(progress.EventStart)
	require.Len(t, starts, 2)
	assert.Equal(t, 0, starts[0].Event.PercentComplete)
	assert.Len(t, listener.byType(progress.EventFound), 2)

	successes := listener.byType(progress.EventSuccess)
	require.Len(t, successes, 2)
	assert.Equal(t, 50, successes[0].Event.PercentComplete)
	assert.Equal(t, 100, successes[1].Event.PercentComplete)
	assert.Equal(t, 100, publisher.PercentComplete())

	// A second pass over the same destinations still uploads nothing; the
	// existence checks short-circuit every asset again.
	require.NoError(t, publisher.Publish(context.Background()))
	assert.Zero(t, uploads)
	assert.Len(t, listener.byType(progress.EventFound), 4)
}

func TestPublishCollectsFailuresAndContinues(t *testing.T) {
	t.Parallel()

	fsys := billy.NewInMemoryFS()
	m := twoFileManifest(t, fsys)

	client := testutil.NewMockAws()
	foundListing(client)
	client.S3.GetBucketLocationFunc = func(_ context.Context, params *s3.GetBucketLocationInput, _ ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
		if aws.ToString(params.Bucket) == "bucket_one" {
			return nil, &smithy.GenericAPIError{Code: "NoSuchBucket"}
		}
		return &s3.GetBucketLocationOutput{}, nil
	}

	listener := &recorder{}
	publisher, err := assets.NewAssetPublisher(m, client,
		assets.WithFS(fsys),
		assets.WithFailOnError(false),
		assets.WithProgressListener(listener),
	)
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(context.Background()))

	require.True(t, publisher.HasFailures())
	failures := publisher.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "asset1:dest", failures[0].Asset.ID.String())
	assert.ErrorIs(t, failures[0].Error, asseterrors.ErrBucketMissing)

	// The second asset still went through.
	assert.Len(t, listener.byType(progress.EventSuccess), 1)
	assert.Len(t, listener.byType(progress.EventFail), 1)
}

func TestPublishFailOnError(t *testing.T) {
	t.Parallel()

	fsys := billy.NewInMemoryFS()
	m := twoFileManifest(t, fsys)

	client := testutil.NewMockAws()
	foundListing(client)
	client.S3.GetBucketLocationFunc = func(context.Context, *s3.GetBucketLocationInput, ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
		return nil, &smithy.GenericAPIError{Code: "NoSuchBucket"}
	}

	publisher, err := assets.NewAssetPublisher(m, client, assets.WithFS(fsys))
	require.NoError(t, err)

	err = publisher.Publish(context.Background())
	var publishErr *asseterrors.PublishError
	require.ErrorAs(t, err, &publishErr)
	assert.Len(t, publishErr.Messages, 2)
	assert.Contains(t, err.Error(), "error publishing")
}

func TestListenerAbortStopsSerialPass(t *testing.T) {
	t.Parallel()

	fsys := billy.NewInMemoryFS()
	m := twoFileManifest(t, fsys)

	client := testutil.NewMockAws()
	foundListing(client)

	var publisher *assets.AssetPublisher
	listener := &recorder{
		React: func(eventType progress.EventType, _ progress.Event) {
			if eventType == progress.EventSuccess {
				publisher.Abort()
			}
		},
	}

	publisher, err := assets.NewAssetPublisher(m, client,
		assets.WithFS(fsys),
		assets.WithProgressListener(listener),
	)
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(context.Background()))

	// Aborting during the first asset's success keeps the second from starting.
	assert.Len(t, listener.byType(progress.EventStart), 1)
	assert.Len(t, listener.byType(progress.EventSuccess), 1)
}

func TestPublishEmptyManifest(t *testing.T) {
	t.Parallel()

	fsys := billy.NewInMemoryFS()
	require.NoError(t, fsys.WriteFile("/work/assets.json", []byte(`{"version": "1.0"}`), 0o644))
	m, err := manifest.FromFS(fsys, "/work")
	require.NoError(t, err)

	publisher, err := assets.NewAssetPublisher(m, testutil.NewMockAws(), assets.WithFS(fsys))
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(context.Background()))
	assert.Equal(t, 100, publisher.PercentComplete())
}

func TestPublishParallel(t *testing.T) {
	t.Parallel()

	fsys := billy.NewInMemoryFS()
	m := twoFileManifest(t, fsys)

	client := testutil.NewMockAws()
	foundListing(client)

	listener := &recorder{}
	publisher, err := assets.NewAssetPublisher(m, client,
		assets.WithFS(fsys),
		assets.WithParallel(true),
		assets.WithProgressListener(listener),
	)
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(context.Background()))
	assert.Len(t, listener.byType(progress.EventSuccess), 2)
	assert.Equal(t, 100, publisher.PercentComplete())
}

func TestPublishWithoutPublishing(t *testing.T) {
	t.Parallel()

	fsys := billy.NewInMemoryFS()
	m := twoFileManifest(t, fsys)

	client := testutil.NewMockAws()
	var checks int
	client.S3.ListObjectsV2Func = func(context.Context, *s3.ListObjectsV2Input, ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
		checks++
		return &s3.ListObjectsV2Output{}, nil
	}

	publisher, err := assets.NewAssetPublisher(m, client,
		assets.WithFS(fsys),
		assets.WithPublishAssets(false),
	)
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(context.Background()))
	assert.Zero(t, checks)
}

func TestPublishFilesIgnoresBrokenDockerCredsConfig(t *testing.T) {
	t.Setenv("ASSETS_DOCKER_CREDS_FILE", "/creds.json")

	fsys := billy.NewInMemoryFS()
	require.NoError(t, fsys.WriteFile("/creds.json", []byte("nope"), 0o600))
	m := twoFileManifest(t, fsys)

	client := testutil.NewMockAws()
	foundListing(client)

	// The credentials config only matters for registry logins; a file-only
	// manifest publishes without ever reading it.
	publisher, err := assets.NewAssetPublisher(m, client, assets.WithFS(fsys))
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(context.Background()))
	assert.False(t, publisher.HasFailures())
}

func TestIsEntryPublished(t *testing.T) {
	t.Parallel()

	fsys := billy.NewInMemoryFS()
	m := twoFileManifest(t, fsys)

	client := testutil.NewMockAws()
	foundListing(client)

	publisher, err := assets.NewAssetPublisher(m, client, assets.WithFS(fsys))
	require.NoError(t, err)

	published, err := publisher.IsEntryPublished(context.Background(), m.Entries()[0])
	require.NoError(t, err)
	assert.True(t, published)
}

func TestBuildAndPublishEntry(t *testing.T) {
	t.Parallel()

	fsys := billy.NewInMemoryFS()
	m := twoFileManifest(t, fsys)

	client := testutil.NewMockAws()
	foundListing(client)

	listener := &recorder{}
	publisher, err := assets.NewAssetPublisher(m, client,
		assets.WithFS(fsys),
		assets.WithProgressListener(listener),
	)
	require.NoError(t, err)

	entry := m.Entries()[0]
	assert.True(t, publisher.BuildEntry(context.Background(), entry))
	assert.True(t, publisher.PublishEntry(context.Background(), entry))
	assert.False(t, publisher.HasFailures())

	var messages []string
	for _, e := range listener.byType(progress.EventSuccess) {
		messages = append(messages, e.Event.Message)
	}
	assert.Equal(t, []string{
		fmt.Sprintf("Built %s", entry.ID),
		fmt.Sprintf("Published %s", entry.ID),
	}, messages)
}
