package manifest

import "fmt"

// Kind discriminates the asset variants a manifest entry can describe.
type Kind string

const (
	// KindFile is a file or directory asset published to an S3 bucket.
	KindFile Kind = "file"

	// KindContainerImage is a container image asset published to an ECR
	// repository.
	KindContainerImage Kind = "container-image"
)

// EntryID identifies one asset/destination combination. Every entry in a
// manifest is addressed by the pair, rendered as "assetID:destinationID".
type EntryID struct {
	// AssetID is the identifier of the asset within the manifest
	AssetID string

	// DestinationID is the identifier of the destination within the asset
	DestinationID string
}

// String renders the composite identifier.
func (i EntryID) String() string {
	return fmt.Sprintf("%s:%s", i.AssetID, i.DestinationID)
}

// Entry is one publishable unit: a single asset bound to a single destination.
// Exactly one of File or Image is set, matching Kind. Entries are immutable
// once loaded.
type Entry struct {
	// ID is the stable asset/destination identifier
	ID EntryID

	// Kind tags which variant this entry holds
	Kind Kind

	// File holds the file variant (set when Kind == KindFile)
	File *FileEntry

	// Image holds the container image variant (set when Kind == KindContainerImage)
	Image *ImageEntry
}

// FileEntry pairs a file source with an S3 destination.
type FileEntry struct {
	Source      FileSource
	Destination FileDestination
}

// ImageEntry pairs a container image source with an ECR destination.
type ImageEntry struct {
	Source      ImageSource
	Destination ImageDestination
}

// Packaging selects how a file source is turned into an uploadable package.
type Packaging string

const (
	// PackagingFile uploads the source file as-is.
	PackagingFile Packaging = "file"

	// PackagingZipDirectory archives the source directory into a zip file.
	PackagingZipDirectory Packaging = "zip"
)

// FileSource describes where a file asset comes from. Either Path is set
// (optionally with Packaging), or Executable names an external command whose
// output is the path of the finished package.
type FileSource struct {
	// Path is the file or directory, relative to the manifest directory
	Path string `json:"path,omitempty"`

	// Packaging is how the path is packaged (defaults to PackagingFile)
	Packaging Packaging `json:"packaging,omitempty"`

	// Executable is an external command that produces the package and prints
	// its path on stdout
	Executable []string `json:"executable,omitempty"`
}

// Destination carries the credential context shared by all destination kinds.
// String fields may contain placeholder tokens that are substituted before
// use (see the awsapi package).
type Destination struct {
	// Region is the target region (empty means the default region)
	Region string `json:"region,omitempty"`

	// AssumeRoleARN is an optional role to assume before talking to the
	// destination account
	AssumeRoleARN string `json:"assumeRoleArn,omitempty"`

	// AssumeRoleExternalID is the external ID for the assumed role
	AssumeRoleExternalID string `json:"assumeRoleExternalId,omitempty"`

	// AssumeRoleAdditionalOptions holds extra AssumeRole request fields
	// (session tags and the like), passed through to the credentials provider
	AssumeRoleAdditionalOptions map[string]any `json:"assumeRoleAdditionalOptions,omitempty"`
}

// FileDestination is an S3 bucket and object key.
type FileDestination struct {
	Destination

	// BucketName is the destination bucket
	BucketName string `json:"bucketName"`

	// ObjectKey is the destination object key
	ObjectKey string `json:"objectKey"`
}

// ImageDestination is an ECR repository and image tag.
type ImageDestination struct {
	Destination

	// RepositoryName is the destination repository
	RepositoryName string `json:"repositoryName"`

	// ImageTag is the tag pushed to the repository
	ImageTag string `json:"imageTag"`
}

// Cache is a docker build cache specification (--cache-from / --cache-to).
type Cache struct {
	// Type is the cache backend type (registry, gha, inline, ...)
	Type string `json:"type"`

	// Params are backend-specific key/value options
	Params map[string]string `json:"params,omitempty"`
}

// ImageSource describes where a container image comes from. Either Directory
// is set (a docker build context), or Executable names an external command
// that produces the image and prints its reference on stdout.
type ImageSource struct {
	// Directory is the docker build context, relative to the manifest directory
	Directory string `json:"directory,omitempty"`

	// Executable is an external command that builds the image and prints its
	// reference on stdout
	Executable []string `json:"executable,omitempty"`

	// DockerFile is the Dockerfile path relative to Directory
	DockerFile string `json:"dockerFile,omitempty"`

	// DockerBuildArgs are --build-arg values
	DockerBuildArgs map[string]string `json:"dockerBuildArgs,omitempty"`

	// DockerBuildSecrets are --secret values
	DockerBuildSecrets map[string]string `json:"dockerBuildSecrets,omitempty"`

	// DockerBuildSSH is the --ssh value
	DockerBuildSSH string `json:"dockerBuildSsh,omitempty"`

	// DockerBuildTarget is the --target build stage
	DockerBuildTarget string `json:"dockerBuildTarget,omitempty"`

	// DockerOutputs are --output values
	DockerOutputs []string `json:"dockerOutputs,omitempty"`

	// NetworkMode is the --network mode for the build
	NetworkMode string `json:"networkMode,omitempty"`

	// Platform is the --platform for the build
	Platform string `json:"platform,omitempty"`

	// CacheFrom are the build cache sources
	CacheFrom []Cache `json:"cacheFrom,omitempty"`

	// CacheTo is the build cache destination
	CacheTo *Cache `json:"cacheTo,omitempty"`

	// CacheDisabled disables the build cache entirely (--no-cache)
	CacheDisabled bool `json:"cacheDisabled,omitempty"`
}
