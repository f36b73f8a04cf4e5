package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/testutil"
)

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func TestOwnershipClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		expectedAccount string
		unscopedErr     error
		scopedErr       error
		want            BucketOwnership
		wantErr         bool
	}{
		{
			name: "reachable bucket without expected account is mine",
			want: OwnershipMine,
		},
		{
			name:        "missing bucket",
			unscopedErr: apiError("NoSuchBucket"),
			want:        OwnershipDoesNotExist,
		},
		{
			name:        "denied bucket",
			unscopedErr: apiError("AccessDenied"),
			want:        OwnershipNoAccess,
		},
		{
			name:        "disabled bucket",
			unscopedErr: apiError("AllAccessDisabled"),
			want:        OwnershipNoAccess,
		},
		{
			name:            "owner check passes",
			expectedAccount: "123456789012",
			want:            OwnershipMine,
		},
		{
			name:            "owner check fails",
			expectedAccount: "123456789012",
			scopedErr:       apiError("AccessDenied"),
			want:            OwnershipSomeoneElses,
		},
		{
			name:        "unclassified error is fatal",
			unscopedErr: errors.New("connection reset"),
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := &testutil.MockS3{
				GetBucketLocationFunc: func(_ context.Context, params *s3.GetBucketLocationInput, _ ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
					if params.ExpectedBucketOwner != nil {
						return &s3.GetBucketLocationOutput{}, tt.scopedErr
					}
					return &s3.GetBucketLocationOutput{}, tt.unscopedErr
				},
			}

			cache := NewBucketCache()
			got, err := cache.Ownership(context.Background(), client, "the_bucket", tt.expectedAccount)

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOwnershipProbedOncePerBucket(t *testing.T) {
	t.Parallel()

	var probes int
	client := &testutil.MockS3{
		GetBucketLocationFunc: func(context.Context, *s3.GetBucketLocationInput, ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
			probes++
			return &s3.GetBucketLocationOutput{}, nil
		},
	}

	cache := NewBucketCache()
	for i := 0; i < 4; i++ {
		_, err := cache.Ownership(context.Background(), client, "the_bucket", "")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, probes)
}

func TestEncryptionClassification(t *testing.T) {
	t.Parallel()

	kmsConfig := &s3.GetBucketEncryptionOutput{
		ServerSideEncryptionConfiguration: &s3types.ServerSideEncryptionConfiguration{
			Rules: []s3types.ServerSideEncryptionRule{{
				ApplyServerSideEncryptionByDefault: &s3types.ServerSideEncryptionByDefault{
					SSEAlgorithm:   s3types.ServerSideEncryptionAwsKms,
					KMSMasterKeyID: aws.String("key-arn"),
				},
			}},
		},
	}
	aesConfig := &s3.GetBucketEncryptionOutput{
		ServerSideEncryptionConfiguration: &s3types.ServerSideEncryptionConfiguration{
			Rules: []s3types.ServerSideEncryptionRule{{
				ApplyServerSideEncryptionByDefault: &s3types.ServerSideEncryptionByDefault{
					SSEAlgorithm: s3types.ServerSideEncryptionAes256,
				},
			}},
		},
	}

	tests := []struct {
		name    string
		out     *s3.GetBucketEncryptionOutput
		err     error
		want    BucketEncryption
		wantErr bool
	}{
		{name: "kms", out: kmsConfig, want: BucketEncryption{Type: EncryptionKMS, KMSKeyID: "key-arn"}},
		{name: "aes256", out: aesConfig, want: BucketEncryption{Type: EncryptionAES256}},
		{name: "no rules", out: &s3.GetBucketEncryptionOutput{}, want: BucketEncryption{Type: EncryptionNone}},
		{
			name: "not configured",
			err:  apiError("ServerSideEncryptionConfigurationNotFoundError"),
			want: BucketEncryption{Type: EncryptionNone},
		},
		{name: "missing bucket", err: apiError("NoSuchBucket"), want: BucketEncryption{Type: EncryptionBucketMissing}},
		{name: "denied", err: apiError("AccessDenied"), want: BucketEncryption{Type: EncryptionAccessDenied}},
		{name: "unclassified error is fatal", err: errors.New("connection reset"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := &testutil.MockS3{
				GetBucketEncryptionFunc: func(context.Context, *s3.GetBucketEncryptionInput, ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error) {
					return tt.out, tt.err
				},
			}

			cache := NewBucketCache()
			got, err := cache.Encryption(context.Background(), client, "the_bucket")

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncryptionProbedOncePerBucket(t *testing.T) {
	t.Parallel()

	var probes int
	client := &testutil.MockS3{
		GetBucketEncryptionFunc: func(context.Context, *s3.GetBucketEncryptionInput, ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error) {
			probes++
			return &s3.GetBucketEncryptionOutput{}, nil
		},
	}

	cache := NewBucketCache()
	for i := 0; i < 4; i++ {
		_, err := cache.Encryption(context.Background(), client, "the_bucket")
		require.NoError(t, err)
	}
	_, err := cache.Encryption(context.Background(), client, "other_bucket")
	require.NoError(t, err)

	assert.Equal(t, 2, probes)
}
