// Package awsapi defines the AWS collaborator contracts the asset publisher
// consumes, and provides a default implementation backed by the AWS SDK.
// The interfaces are deliberately narrow so tests can substitute
// function-field mocks.
package awsapi

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Account identifies an AWS account. An account always lives in exactly one
// partition; the partition matters when ARNs have to be formed.
type Account struct {
	// ID is the account number
	ID string

	// Partition is the partition name ('aws', 'aws-cn', ...)
	Partition string
}

// ClientOptions scope a service client to a region and, optionally, to a
// role assumed in another account.
type ClientOptions struct {
	// Region is the target region (empty uses the default region)
	Region string

	// AssumeRoleARN is an optional role to assume
	AssumeRoleARN string

	// AssumeRoleExternalID is the external ID for the assumed role
	AssumeRoleExternalID string

	// AssumeRoleAdditionalOptions holds extra AssumeRole request fields
	// (session tags and the like)
	AssumeRoleAdditionalOptions map[string]any

	// Quiet suppresses informational output when resolving credentials
	Quiet bool
}

// S3API is the S3 surface the file asset handler needs: ownership and
// encryption probes, a prefix listing for existence checks, and a
// multipart-capable upload.
type S3API interface {
	// GetBucketLocation probes bucket ownership
	GetBucketLocation(
		ctx context.Context,
		params *s3.GetBucketLocationInput,
		optFns ...func(*s3.Options),
	) (*s3.GetBucketLocationOutput, error)

	// GetBucketEncryption reads the bucket's default encryption configuration
	GetBucketEncryption(
		ctx context.Context,
		params *s3.GetBucketEncryptionInput,
		optFns ...func(*s3.Options),
	) (*s3.GetBucketEncryptionOutput, error)

	// ListObjectsV2 lists objects; used with Prefix and MaxKeys=1 as the
	// existence probe
	ListObjectsV2(
		ctx context.Context,
		params *s3.ListObjectsV2Input,
		optFns ...func(*s3.Options),
	) (*s3.ListObjectsV2Output, error)

	// Upload streams an object to the bucket, switching to multipart
	// uploads for large bodies
	Upload(ctx context.Context, params *s3.PutObjectInput) error
}

// ECRAPI is the ECR surface the container image handler needs.
type ECRAPI interface {
	// DescribeImages checks image existence by tag
	DescribeImages(
		ctx context.Context,
		params *ecr.DescribeImagesInput,
		optFns ...func(*ecr.Options),
	) (*ecr.DescribeImagesOutput, error)

	// DescribeRepositories resolves the repository URI
	DescribeRepositories(
		ctx context.Context,
		params *ecr.DescribeRepositoriesInput,
		optFns ...func(*ecr.Options),
	) (*ecr.DescribeRepositoriesOutput, error)

	// GetAuthorizationToken obtains registry login credentials
	GetAuthorizationToken(
		ctx context.Context,
		params *ecr.GetAuthorizationTokenInput,
		optFns ...func(*ecr.Options),
	) (*ecr.GetAuthorizationTokenOutput, error)
}

// SecretsManagerAPI is the Secrets Manager surface used for docker registry
// domain credentials.
type SecretsManagerAPI interface {
	// GetSecretValue reads a secret value
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// Client is the entry point for all AWS operations required by asset
// publishing: identity discovery plus factories for the scoped service
// clients.
type Client interface {
	// DiscoverPartition returns the partition of the current credentials
	DiscoverPartition(ctx context.Context) (string, error)

	// DiscoverDefaultRegion returns the region the default configuration
	// resolves to
	DiscoverDefaultRegion(ctx context.Context) (string, error)

	// DiscoverCurrentAccount returns the account of the current credentials
	DiscoverCurrentAccount(ctx context.Context) (Account, error)

	// DiscoverTargetAccount returns the account reachable with the given
	// client options (after any assume-role)
	DiscoverTargetAccount(ctx context.Context, options ClientOptions) (Account, error)

	// S3Client returns an S3 client scoped by the given options
	S3Client(ctx context.Context, options ClientOptions) (S3API, error)

	// ECRClient returns an ECR client scoped by the given options
	ECRClient(ctx context.Context, options ClientOptions) (ECRAPI, error)

	// SecretsManagerClient returns a Secrets Manager client scoped by the
	// given options
	SecretsManagerClient(ctx context.Context, options ClientOptions) (SecretsManagerAPI, error)
}
