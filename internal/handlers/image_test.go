package handlers

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	asseterrors "github.com/input-output-hk/catalyst-forge-libs/assets/errors"
	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/assets/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/assets/progress"
)

const repoURI = "12345.dkr.ecr.us-east-1.amazonaws.com/repo"

func imageEntry(assetID, repository, tag string) *manifest.Entry {
	return &manifest.Entry{
		ID:   manifest.EntryID{AssetID: assetID, DestinationID: "dest"},
		Kind: manifest.KindContainerImage,
		Image: &manifest.ImageEntry{
			Source: manifest.ImageSource{Directory: "dockerdir"},
			Destination: manifest.ImageDestination{
				RepositoryName: repository,
				ImageTag:       tag,
			},
		},
	}
}

func repoAnswer(client *testutil.MockAws) {
	client.ECR.DescribeRepositoriesFunc = func(_ context.Context, params *ecr.DescribeRepositoriesInput, _ ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error) {
		return &ecr.DescribeRepositoriesOutput{
			Repositories: []ecrtypes.Repository{{RepositoryUri: aws.String(repoURI)}},
		}, nil
	}
}

func TestImagePublishSkipsExistingImage(t *testing.T) {
	t.Parallel()

	client := testutil.NewMockAws()
	repoAnswer(client)

	var probes int
	client.ECR.DescribeImagesFunc = func(_ context.Context, params *ecr.DescribeImagesInput, _ ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error) {
		probes++
		assert.Equal(t, "repo", aws.ToString(params.RepositoryName))
		require.Len(t, params.ImageIds, 1)
		assert.Equal(t, "abcdef", aws.ToString(params.ImageIds[0].ImageTag))
		return &ecr.DescribeImagesOutput{}, nil
	}

	log := &eventLog{}
	h := newImageHandler(workDir, imageEntry("theAsset", "repo", "abcdef"),
		newTestHost(client, billy.NewInMemoryFS(), log), Options{})

	require.NoError(t, h.Build(context.Background()))
	require.NoError(t, h.Publish(context.Background(), DefaultPublishOptions()))

	// Destination state is resolved once and shared by build and publish.
	assert.Equal(t, 1, probes)
	assert.True(t, log.has(progress.EventCheck))
	assert.True(t, log.has(progress.EventFound))
}

func TestImageRepositoryMissing(t *testing.T) {
	t.Parallel()

	client := testutil.NewMockAws()
	client.ECR.DescribeRepositoriesFunc = func(context.Context, *ecr.DescribeRepositoriesInput, ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error) {
		return nil, apiError("RepositoryNotFoundException")
	}

	log := &eventLog{}
	h := newImageHandler(workDir, imageEntry("theAsset", "missing_repo", "tag"),
		newTestHost(client, billy.NewInMemoryFS(), log), Options{})

	err := h.Publish(context.Background(), DefaultPublishOptions())
	assert.ErrorIs(t, err, asseterrors.ErrRepositoryMissing)
	assert.Contains(t, err.Error(), "missing_repo")
}

func TestImageIsPublished(t *testing.T) {
	t.Parallel()

	t.Run("found", func(t *testing.T) {
		t.Parallel()

		client := testutil.NewMockAws()
		repoAnswer(client)

		log := &eventLog{}
		h := newImageHandler(workDir, imageEntry("theAsset", "repo", "abcdef"),
			newTestHost(client, billy.NewInMemoryFS(), log), Options{})

		published, err := h.IsPublished(context.Background())
		require.NoError(t, err)
		assert.True(t, published)
		assert.True(t, log.has(progress.EventFound))
	})

	t.Run("probe failure means not published", func(t *testing.T) {
		t.Parallel()

		client := testutil.NewMockAws()
		client.ECR.DescribeRepositoriesFunc = func(context.Context, *ecr.DescribeRepositoriesInput, ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error) {
			return nil, apiError("AccessDeniedException")
		}

		log := &eventLog{}
		h := newImageHandler(workDir, imageEntry("theAsset", "repo", "abcdef"),
			newTestHost(client, billy.NewInMemoryFS(), log), Options{})

		published, err := h.IsPublished(context.Background())
		require.NoError(t, err)
		assert.False(t, published)
		assert.True(t, log.has(progress.EventDebug))
	})
}

func TestImageExistenceProbeErrorIsFatalForPublish(t *testing.T) {
	t.Parallel()

	client := testutil.NewMockAws()
	repoAnswer(client)
	client.ECR.DescribeImagesFunc = func(context.Context, *ecr.DescribeImagesInput, ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error) {
		return nil, apiError("ServerException")
	}

	log := &eventLog{}
	h := newImageHandler(workDir, imageEntry("theAsset", "repo", "abcdef"),
		newTestHost(client, billy.NewInMemoryFS(), log), Options{})

	err := h.Publish(context.Background(), DefaultPublishOptions())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, asseterrors.ErrRepositoryMissing)
}
