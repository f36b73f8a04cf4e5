package handlers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"

	"github.com/input-output-hk/catalyst-forge-libs/assets/awsapi"
	asseterrors "github.com/input-output-hk/catalyst-forge-libs/assets/errors"
	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/docker"
	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/shell"
	"github.com/input-output-hk/catalyst-forge-libs/assets/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/assets/progress"
)

// localTagPrefix prefixes the local tag applied to directory builds, keyed by
// asset ID so re-runs reuse the image already present in the local daemon.
const localTagPrefix = "cdkasset-"

// imageHandler publishes a container image asset to an ECR repository.
type imageHandler struct {
	workDir string
	entry   *manifest.Entry
	host    *Host
	opts    Options

	mu   sync.Mutex
	init *imageInit
}

// imageInit is the destination state shared by build, publish and existence
// checks: resolved once per handler, because every step needs the repository
// URI and the result of the same existence probe.
type imageInit struct {
	imageURI string
	exists   bool

	// docker is logged in to the destination registry; nil when the image
	// already exists and no push will happen
	docker *docker.Docker
}

var _ AssetHandler = (*imageHandler)(nil)

func newImageHandler(workDir string, entry *manifest.Entry, host *Host, opts Options) *imageHandler {
	return &imageHandler{
		workDir: workDir,
		entry:   entry,
		host:    host,
		opts:    opts,
	}
}

// Build produces the image locally and tags it with the destination URI.
// Nothing is built when the destination already holds the image.
func (h *imageHandler) Build(ctx context.Context) error {
	init, err := h.initOnce(ctx, false)
	if err != nil {
		return err
	}
	if init.exists {
		return nil
	}
	if h.host.Aborted() {
		return asseterrors.ErrAborted
	}

	source := h.entry.Image.Source
	var localRef string
	if len(source.Executable) > 0 {
		localRef, err = h.externalImage(ctx, source.Executable)
	} else {
		localRef, err = h.buildDirectory(ctx, init.docker, source)
	}
	if err != nil {
		return err
	}

	return init.docker.Tag(ctx, localRef, init.imageURI)
}

// Publish pushes the built image unless the destination already holds it.
func (h *imageHandler) Publish(ctx context.Context, _ PublishOptions) error {
	init, err := h.initOnce(ctx, false)
	if err != nil {
		return err
	}
	if init.exists {
		h.host.Emit(progress.EventFound, "Found "+init.imageURI)
		return nil
	}
	if h.host.Aborted() {
		return asseterrors.ErrAborted
	}

	h.host.Emit(progress.EventUpload, "Push "+init.imageURI)
	return init.docker.Push(ctx, init.imageURI)
}

// IsPublished reports whether the destination repository already holds the
// tag. Failures are reported as "not published" so a subsequent publish
// surfaces the real error.
func (h *imageHandler) IsPublished(ctx context.Context) (bool, error) {
	init, err := h.initOnce(ctx, true)
	if err != nil {
		h.host.Emit(progress.EventDebug, err.Error())
		return false, nil
	}
	if init.exists {
		h.host.Emit(progress.EventFound, "Found "+init.imageURI)
	}
	return init.exists, nil
}

// initOnce resolves the destination, probes existence and, when a push will
// be needed, obtains a logged-in backend. Subsequent calls reuse the result.
func (h *imageHandler) initOnce(ctx context.Context, quiet bool) (*imageInit, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.init != nil {
		return h.init, nil
	}

	dest, err := resolver{aws: h.host.Aws}.imageDestination(ctx, h.entry.Image.Destination)
	if err != nil {
		return nil, err
	}

	copts := clientOptions(dest.Destination)
	copts.Quiet = quiet
	ecrClient, err := h.host.Aws.ECRClient(ctx, copts)
	if err != nil {
		return nil, err
	}

	repoURI, err := repositoryURI(ctx, ecrClient, dest.RepositoryName)
	if err != nil {
		return nil, err
	}
	imageURI := repoURI + ":" + dest.ImageTag

	h.host.Emit(progress.EventCheck, "Check "+imageURI)
	exists, err := imageExists(ctx, ecrClient, dest.RepositoryName, dest.ImageTag)
	if err != nil {
		return nil, err
	}

	init := &imageInit{imageURI: imageURI, exists: exists}
	if !exists {
		init.docker, err = h.host.Docker.ForRegistry(
			ctx, h.host.Aws, ecrClient, repoURI, h.host.Emit, h.opts.OutputDestination)
		if err != nil {
			return nil, err
		}
	}

	h.init = init
	return init, nil
}

// buildDirectory builds the source directory, reusing a local image from a
// previous run when one is present.
func (h *imageHandler) buildDirectory(ctx context.Context, backend *docker.Docker, source manifest.ImageSource) (string, error) {
	localTag := localTagPrefix + strings.ToLower(h.entry.ID.AssetID)

	cached, err := backend.Exists(ctx, localTag)
	if err != nil {
		return "", err
	}
	if cached {
		h.host.Emit(progress.EventCached, "Cached "+localTag)
		return localTag, nil
	}

	dir := source.Directory
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(h.workDir, dir)
	}

	h.host.Emit(progress.EventBuild, fmt.Sprintf("Building Docker image at %s", dir))
	if err := backend.Build(ctx, docker.BuildOptions{
		Directory: dir,
		Tag:       localTag,
		Source:    source,
	}); err != nil {
		return "", err
	}
	return localTag, nil
}

// externalImage runs the source's build command; the command prints the local
// image reference on stdout.
func (h *imageHandler) externalImage(ctx context.Context, executable []string) (string, error) {
	h.host.Emit(progress.EventBuild, "Building asset source using command: "+strings.Join(executable, " "))

	out, err := shell.Run(ctx, executable, shell.Options{
		WorkingDir: h.workDir,
		Quiet:      true,
		Publisher:  h.host.Emit,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// repositoryURI resolves the repository's URI; the repository must already
// exist, publishing never creates it.
func repositoryURI(ctx context.Context, client awsapi.ECRAPI, name string) (string, error) {
	out, err := client.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{name},
	})
	if err != nil {
		if apiErrorCode(err) == "RepositoryNotFoundException" {
			return "", fmt.Errorf("%w: %q (is the account bootstrapped?)",
				asseterrors.ErrRepositoryMissing, name)
		}
		return "", fmt.Errorf("handlers: describe repository %q: %w", name, err)
	}
	if len(out.Repositories) == 0 || out.Repositories[0].RepositoryUri == nil {
		return "", fmt.Errorf("%w: %q", asseterrors.ErrRepositoryMissing, name)
	}
	return aws.ToString(out.Repositories[0].RepositoryUri), nil
}

// imageExists probes the repository for the tag. A missing image is a normal
// outcome, any other service failure is fatal.
func imageExists(ctx context.Context, client awsapi.ECRAPI, repository, tag string) (bool, error) {
	_, err := client.DescribeImages(ctx, &ecr.DescribeImagesInput{
		RepositoryName: aws.String(repository),
		ImageIds:       []ecrtypes.ImageIdentifier{{ImageTag: aws.String(tag)}},
	})
	if err != nil {
		if apiErrorCode(err) == "ImageNotFoundException" {
			return false, nil
		}
		return false, fmt.Errorf("handlers: check %s:%s: %w", repository, tag, err)
	}
	return true, nil
}
