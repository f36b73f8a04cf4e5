package handlers

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"

	"github.com/input-output-hk/catalyst-forge-libs/fs"

	"github.com/input-output-hk/catalyst-forge-libs/assets/awsapi"
	asseterrors "github.com/input-output-hk/catalyst-forge-libs/assets/errors"
	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/archive"
	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/shell"
	"github.com/input-output-hk/catalyst-forge-libs/assets/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/assets/progress"
)

// emptyZipFileSize is the byte size of a zip archive with no entries.
// Objects at or below this size are treated as absent during existence
// checks, so a previously uploaded empty placeholder gets overwritten.
const emptyZipFileSize = 22

// cacheDirName is the package cache directory under the manifest directory.
const cacheDirName = ".cache"

// fileHandler publishes a file or directory asset to an S3 object.
type fileHandler struct {
	workDir string
	entry   *manifest.Entry
	host    *Host
	opts    Options
}

var _ AssetHandler = (*fileHandler)(nil)

func newFileHandler(workDir string, entry *manifest.Entry, host *Host, opts Options) *fileHandler {
	return &fileHandler{
		workDir: workDir,
		entry:   entry,
		host:    host,
		opts:    opts,
	}
}

// Build is a no-op for file assets: packaging is cheap and happens lazily
// during publish, after the existence check has had a chance to skip the
// whole asset.
func (h *fileHandler) Build(_ context.Context) error {
	return nil
}

// Publish uploads the packaged asset unless the destination object already
// exists with real content.
func (h *fileHandler) Publish(ctx context.Context, opts PublishOptions) error {
	asset := h.entry.File

	dest, err := resolver{aws: h.host.Aws}.fileDestination(ctx, asset.Destination)
	if err != nil {
		return err
	}
	s3URL := fmt.Sprintf("s3://%s/%s", dest.BucketName, dest.ObjectKey)
	copts := clientOptions(dest.Destination)

	client, err := h.host.Aws.S3Client(ctx, copts)
	if err != nil {
		return err
	}

	h.host.Emit(progress.EventCheck, "Check "+s3URL)

	var expectedAccount string
	if !opts.AllowCrossAccount {
		account, err := h.host.Aws.DiscoverTargetAccount(ctx, copts)
		if err != nil {
			return err
		}
		expectedAccount = account.ID
	}

	ownership, err := h.host.Buckets.Ownership(ctx, client, dest.BucketName, expectedAccount)
	if err != nil {
		return err
	}
	switch ownership {
	case OwnershipMine:
	case OwnershipDoesNotExist:
		return fmt.Errorf("%w: no bucket named %q (is account %s bootstrapped?)",
			asseterrors.ErrBucketMissing, dest.BucketName, h.targetAccountLabel(ctx, copts))
	case OwnershipNoAccess:
		return fmt.Errorf("%w: bucket %q exists, but the current credentials cannot access it (is account %s bootstrapped?)",
			asseterrors.ErrBucketNoAccess, dest.BucketName, h.targetAccountLabel(ctx, copts))
	case OwnershipSomeoneElses:
		return fmt.Errorf("%w: bucket %q is not owned by account %s; refusing to upload across account boundaries",
			asseterrors.ErrUnexpectedBucketOwner, dest.BucketName, expectedAccount)
	}

	exists, err := objectExists(ctx, client, dest.BucketName, dest.ObjectKey)
	if err != nil {
		return err
	}
	if exists {
		h.host.Emit(progress.EventFound, "Found "+s3URL)
		return nil
	}

	encryption, err := h.host.Buckets.Encryption(ctx, client, dest.BucketName)
	if err != nil {
		return err
	}

	if h.host.Aborted() {
		return asseterrors.ErrAborted
	}

	var packagedPath, contentType string
	if len(asset.Source.Executable) > 0 {
		packagedPath, contentType, err = h.externalPackageFile(ctx, asset.Source.Executable)
	} else {
		packagedPath, contentType, err = h.packageFile(asset.Source)
	}
	if err != nil {
		return err
	}

	h.host.Emit(progress.EventUpload, "Upload "+s3URL)

	body, err := h.host.FS.Open(packagedPath)
	if err != nil {
		return fmt.Errorf("handlers: open package %q: %w", packagedPath, err)
	}
	defer body.Close()

	input := &s3.PutObjectInput{
		Bucket:            aws.String(dest.BucketName),
		Key:               aws.String(dest.ObjectKey),
		Body:              body,
		ContentType:       aws.String(contentType),
		ChecksumAlgorithm: s3types.ChecksumAlgorithmSha256,
	}
	applyEncryption(input, encryption, h.debug)

	if err := client.Upload(ctx, input); err != nil {
		return fmt.Errorf("handlers: upload %s: %w", s3URL, err)
	}
	return nil
}

// IsPublished reports whether the destination object already exists.
// Failures are reported as "not published" so a subsequent publish surfaces
// the real error.
func (h *fileHandler) IsPublished(ctx context.Context) (bool, error) {
	dest, err := resolver{aws: h.host.Aws}.fileDestination(ctx, h.entry.File.Destination)
	if err != nil {
		h.debug(err.Error())
		return false, nil
	}
	s3URL := fmt.Sprintf("s3://%s/%s", dest.BucketName, dest.ObjectKey)

	copts := clientOptions(dest.Destination)
	copts.Quiet = true
	client, err := h.host.Aws.S3Client(ctx, copts)
	if err != nil {
		h.debug(err.Error())
		return false, nil
	}

	h.host.Emit(progress.EventCheck, "Check "+s3URL)
	exists, err := objectExists(ctx, client, dest.BucketName, dest.ObjectKey)
	if err != nil {
		h.debug(err.Error())
		return false, nil
	}
	if exists {
		h.host.Emit(progress.EventFound, "Found "+s3URL)
	}
	return exists, nil
}

// packageFile prepares the upload for a path-based source. Directory sources
// are zipped into the session cache, keyed by asset ID, so multiple
// destinations of the same asset package once.
func (h *fileHandler) packageFile(source manifest.FileSource) (string, string, error) {
	if source.Path == "" {
		return "", "", fmt.Errorf("handlers: file source names no path and no executable")
	}

	fullPath := source.Path
	if !filepath.IsAbs(fullPath) {
		fullPath = filepath.Join(h.workDir, source.Path)
	}

	if source.Packaging == manifest.PackagingZipDirectory {
		cacheDir := filepath.Join(h.workDir, cacheDirName)
		if err := h.host.FS.MkdirAll(cacheDir, 0o755); err != nil {
			return "", "", fmt.Errorf("handlers: create package cache: %w", err)
		}

		packagedPath := filepath.Join(cacheDir, h.entry.ID.AssetID+".zip")
		cached, err := h.host.FS.Exists(packagedPath)
		if err != nil {
			return "", "", fmt.Errorf("handlers: probe package cache: %w", err)
		}
		if cached {
			h.host.Emit(progress.EventCached, "From cache "+packagedPath)
		} else {
			h.host.Emit(progress.EventBuild, fmt.Sprintf("Zip %s -> %s", fullPath, packagedPath))
			if err := archive.ZipDirectory(h.host.FS, fullPath, packagedPath, h.debug); err != nil {
				return "", "", err
			}
		}
		return packagedPath, "application/zip", nil
	}

	return fullPath, detectContentType(h.host.FS, fullPath), nil
}

// externalPackageFile runs the source's packaging command; the command prints
// the finished package's path on stdout.
func (h *fileHandler) externalPackageFile(ctx context.Context, executable []string) (string, string, error) {
	h.host.Emit(progress.EventBuild, "Building asset source using command: "+strings.Join(executable, " "))

	out, err := shell.Run(ctx, executable, shell.Options{
		WorkingDir: h.workDir,
		Quiet:      true,
		Publisher:  h.host.Emit,
	})
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(out), "application/zip", nil
}

func (h *fileHandler) debug(message string) {
	h.host.Emit(progress.EventDebug, message)
}

// targetAccountLabel resolves the destination account for error messages; on
// failure it degrades to a placeholder rather than masking the original error.
func (h *fileHandler) targetAccountLabel(ctx context.Context, copts awsapi.ClientOptions) string {
	account, err := h.host.Aws.DiscoverTargetAccount(ctx, copts)
	if err != nil {
		return "<unknown>"
	}
	return account.ID
}

// applyEncryption translates the bucket's default encryption into explicit
// request parameters, so uploads succeed against buckets whose policies
// require the matching encryption headers.
func applyEncryption(input *s3.PutObjectInput, encryption BucketEncryption, debug func(string)) {
	switch encryption.Type {
	case EncryptionAES256:
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	case EncryptionKMS:
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		if encryption.KMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(encryption.KMSKeyID)
		}
	case EncryptionBucketMissing:
		debug("Could not read bucket encryption: bucket does not exist, proceeding without encryption headers")
	case EncryptionAccessDenied:
		debug("Could not read bucket encryption: access denied, proceeding without encryption headers")
	case EncryptionNone:
	}
}

// objectExists probes the destination key with a single-key prefix listing.
// A listing is used instead of a head request because the bucket may deny
// GetObject while still allowing List, and because it lets the empty-marker
// size rule apply uniformly.
func objectExists(ctx context.Context, client awsapi.S3API, bucket, key string) (bool, error) {
	out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("handlers: check s3://%s/%s: %w", bucket, key, err)
	}

	for _, object := range out.Contents {
		if aws.ToString(object.Key) != key {
			continue
		}
		if object.Size == nil || *object.Size > emptyZipFileSize {
			return true, nil
		}
	}
	return false, nil
}

// detectContentType guesses the upload content type, preferring the file
// extension and falling back to content sniffing.
func detectContentType(fsys fs.Filesystem, path string) string {
	if archive.IsArchivePath(path) {
		return "application/zip"
	}
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		return byExt
	}

	f, err := fsys.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	detected, err := mimetype.DetectReader(f)
	if err != nil {
		return "application/octet-stream"
	}
	return detected.String()
}
