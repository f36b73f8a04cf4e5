// Package testutil provides function-field mocks for the AWS collaborator
// interfaces. Tests set only the functions they care about; everything else
// answers with a benign default.
package testutil

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/input-output-hk/catalyst-forge-libs/assets/awsapi"
)

// Default identity answered by MockAws when nothing is configured.
const (
	DefaultAccountID = "123456789012"
	DefaultPartition = "aws"
	DefaultRegion    = "us-east-1"
)

// MockS3 implements awsapi.S3API with overridable functions.
type MockS3 struct {
	GetBucketLocationFunc   func(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	GetBucketEncryptionFunc func(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error)
	ListObjectsV2Func       func(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	UploadFunc              func(ctx context.Context, params *s3.PutObjectInput) error
}

var _ awsapi.S3API = (*MockS3)(nil)

func (m *MockS3) GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
	if m.GetBucketLocationFunc != nil {
		return m.GetBucketLocationFunc(ctx, params, optFns...)
	}
	return &s3.GetBucketLocationOutput{}, nil
}

func (m *MockS3) GetBucketEncryption(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error) {
	if m.GetBucketEncryptionFunc != nil {
		return m.GetBucketEncryptionFunc(ctx, params, optFns...)
	}
	return &s3.GetBucketEncryptionOutput{}, nil
}

func (m *MockS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if m.ListObjectsV2Func != nil {
		return m.ListObjectsV2Func(ctx, params, optFns...)
	}
	return &s3.ListObjectsV2Output{}, nil
}

func (m *MockS3) Upload(ctx context.Context, params *s3.PutObjectInput) error {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, params)
	}
	return nil
}

// MockECR implements awsapi.ECRAPI with overridable functions.
type MockECR struct {
	DescribeImagesFunc        func(ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
	DescribeRepositoriesFunc  func(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	GetAuthorizationTokenFunc func(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
}

var _ awsapi.ECRAPI = (*MockECR)(nil)

func (m *MockECR) DescribeImages(ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error) {
	if m.DescribeImagesFunc != nil {
		return m.DescribeImagesFunc(ctx, params, optFns...)
	}
	return &ecr.DescribeImagesOutput{}, nil
}

func (m *MockECR) DescribeRepositories(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error) {
	if m.DescribeRepositoriesFunc != nil {
		return m.DescribeRepositoriesFunc(ctx, params, optFns...)
	}
	return &ecr.DescribeRepositoriesOutput{}, nil
}

func (m *MockECR) GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error) {
	if m.GetAuthorizationTokenFunc != nil {
		return m.GetAuthorizationTokenFunc(ctx, params, optFns...)
	}
	return &ecr.GetAuthorizationTokenOutput{}, nil
}

// MockSecretsManager implements awsapi.SecretsManagerAPI with overridable
// functions.
type MockSecretsManager struct {
	GetSecretValueFunc func(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

var _ awsapi.SecretsManagerAPI = (*MockSecretsManager)(nil)

func (m *MockSecretsManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if m.GetSecretValueFunc != nil {
		return m.GetSecretValueFunc(ctx, params, optFns...)
	}
	return &secretsmanager.GetSecretValueOutput{}, nil
}

// MockAws implements awsapi.Client. The service clients it hands out are the
// mocks in its fields; identity discovery answers from Account and Region.
type MockAws struct {
	S3             *MockS3
	ECR            *MockECR
	SecretsManager *MockSecretsManager

	Account awsapi.Account
	Region  string

	// DiscoverTargetAccountFunc overrides target account discovery, letting
	// tests vary the answer by destination role
	DiscoverTargetAccountFunc func(ctx context.Context, options awsapi.ClientOptions) (awsapi.Account, error)

	// S3ClientFunc overrides S3 client creation, letting tests inspect the
	// requested client options
	S3ClientFunc func(ctx context.Context, options awsapi.ClientOptions) (awsapi.S3API, error)

	// ECRClientFunc overrides ECR client creation
	ECRClientFunc func(ctx context.Context, options awsapi.ClientOptions) (awsapi.ECRAPI, error)
}

var _ awsapi.Client = (*MockAws)(nil)

// NewMockAws creates a mock with empty service mocks and the default identity.
func NewMockAws() *MockAws {
	return &MockAws{
		S3:             &MockS3{},
		ECR:            &MockECR{},
		SecretsManager: &MockSecretsManager{},
		Account:        awsapi.Account{ID: DefaultAccountID, Partition: DefaultPartition},
		Region:         DefaultRegion,
	}
}

func (m *MockAws) DiscoverPartition(context.Context) (string, error) {
	if m.Account.Partition != "" {
		return m.Account.Partition, nil
	}
	return DefaultPartition, nil
}

func (m *MockAws) DiscoverDefaultRegion(context.Context) (string, error) {
	if m.Region != "" {
		return m.Region, nil
	}
	return DefaultRegion, nil
}

func (m *MockAws) DiscoverCurrentAccount(context.Context) (awsapi.Account, error) {
	return m.account(), nil
}

func (m *MockAws) DiscoverTargetAccount(ctx context.Context, options awsapi.ClientOptions) (awsapi.Account, error) {
	if m.DiscoverTargetAccountFunc != nil {
		return m.DiscoverTargetAccountFunc(ctx, options)
	}
	return m.account(), nil
}

func (m *MockAws) S3Client(ctx context.Context, options awsapi.ClientOptions) (awsapi.S3API, error) {
	if m.S3ClientFunc != nil {
		return m.S3ClientFunc(ctx, options)
	}
	return m.S3, nil
}

func (m *MockAws) ECRClient(ctx context.Context, options awsapi.ClientOptions) (awsapi.ECRAPI, error) {
	if m.ECRClientFunc != nil {
		return m.ECRClientFunc(ctx, options)
	}
	return m.ECR, nil
}

func (m *MockAws) SecretsManagerClient(context.Context, awsapi.ClientOptions) (awsapi.SecretsManagerAPI, error) {
	return m.SecretsManager, nil
}

func (m *MockAws) account() awsapi.Account {
	account := m.Account
	if account.ID == "" {
		account.ID = DefaultAccountID
	}
	if account.Partition == "" {
		account.Partition = DefaultPartition
	}
	return account
}
