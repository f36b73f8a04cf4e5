package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"golang.org/x/sync/singleflight"

	"github.com/input-output-hk/catalyst-forge-libs/assets/awsapi"
)

// BucketOwnership classifies a destination bucket relative to the account the
// publisher expects to own it.
type BucketOwnership int

const (
	// OwnershipMine means the bucket exists in the expected account.
	OwnershipMine BucketOwnership = iota

	// OwnershipDoesNotExist means no bucket by that name exists.
	OwnershipDoesNotExist

	// OwnershipNoAccess means the bucket exists but the credentials cannot
	// touch it at all.
	OwnershipNoAccess

	// OwnershipSomeoneElses means the bucket is reachable but owned by a
	// different account than expected.
	OwnershipSomeoneElses
)

// EncryptionType classifies a bucket's default encryption configuration.
type EncryptionType string

const (
	// EncryptionNone means no default encryption is configured.
	EncryptionNone EncryptionType = "no_encryption"

	// EncryptionAES256 means SSE-S3 managed keys.
	EncryptionAES256 EncryptionType = "aes256"

	// EncryptionKMS means SSE-KMS with the key in BucketEncryption.KMSKeyID.
	EncryptionKMS EncryptionType = "kms"

	// EncryptionBucketMissing means the probe found no such bucket.
	EncryptionBucketMissing EncryptionType = "does_not_exist"

	// EncryptionAccessDenied means the probe was not allowed; uploads proceed
	// without explicit encryption headers.
	EncryptionAccessDenied EncryptionType = "access_denied"
)

// BucketEncryption is the result of an encryption probe.
type BucketEncryption struct {
	Type EncryptionType

	// KMSKeyID is set when Type is EncryptionKMS
	KMSKeyID string
}

// BucketCache memoizes per-bucket metadata probes for one publishing session.
// Many destinations typically share a bucket; without the cache every file
// asset would re-probe ownership and encryption. Concurrent probes for the
// same bucket are coalesced so exactly one service call is made.
type BucketCache struct {
	group singleflight.Group

	mu          sync.Mutex
	ownerships  map[string]BucketOwnership
	encryptions map[string]BucketEncryption
}

// NewBucketCache creates an empty cache.
func NewBucketCache() *BucketCache {
	return &BucketCache{
		ownerships:  make(map[string]BucketOwnership),
		encryptions: make(map[string]BucketEncryption),
	}
}

// Ownership reports who owns the bucket. When expectedAccount is non-empty
// the probe additionally verifies the bucket belongs to that account.
func (c *BucketCache) Ownership(
	ctx context.Context,
	client awsapi.S3API,
	bucket string,
	expectedAccount string,
) (BucketOwnership, error) {
	key := "ownership:" + bucket + ":" + expectedAccount

	c.mu.Lock()
	if cached, ok := c.ownerships[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		ownership, err := probeOwnership(ctx, client, bucket, expectedAccount)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.ownerships[key] = ownership
		c.mu.Unlock()
		return ownership, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(BucketOwnership), nil
}

// Encryption reports the bucket's default encryption configuration.
func (c *BucketCache) Encryption(
	ctx context.Context,
	client awsapi.S3API,
	bucket string,
) (BucketEncryption, error) {
	key := "encryption:" + bucket

	c.mu.Lock()
	if cached, ok := c.encryptions[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		encryption, err := probeEncryption(ctx, client, bucket)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.encryptions[key] = encryption
		c.mu.Unlock()
		return encryption, nil
	})
	if err != nil {
		return BucketEncryption{}, err
	}
	return v.(BucketEncryption), nil
}

// probeOwnership runs the two-phase ownership check: first an unscoped
// location call to learn whether the bucket is reachable at all, then a call
// scoped to the expected owner. The scoped call failing with access denied
// while the unscoped call succeeded means the bucket moved accounts.
func probeOwnership(
	ctx context.Context,
	client awsapi.S3API,
	bucket string,
	expectedAccount string,
) (BucketOwnership, error) {
	ownership, err := locationProbe(ctx, client, bucket, "")
	if err != nil {
		return 0, err
	}
	if ownership != OwnershipMine || expectedAccount == "" {
		return ownership, nil
	}

	scoped, err := locationProbe(ctx, client, bucket, expectedAccount)
	if err != nil {
		return 0, err
	}
	if scoped == OwnershipNoAccess {
		return OwnershipSomeoneElses, nil
	}
	return scoped, nil
}

func locationProbe(
	ctx context.Context,
	client awsapi.S3API,
	bucket string,
	expectedOwner string,
) (BucketOwnership, error) {
	input := &s3.GetBucketLocationInput{Bucket: aws.String(bucket)}
	if expectedOwner != "" {
		input.ExpectedBucketOwner = aws.String(expectedOwner)
	}

	_, err := client.GetBucketLocation(ctx, input)
	switch apiErrorCode(err) {
	case "":
		if err != nil {
			return 0, fmt.Errorf("handlers: probe ownership of bucket %q: %w", bucket, err)
		}
		return OwnershipMine, nil
	case "NoSuchBucket":
		return OwnershipDoesNotExist, nil
	case "AccessDenied", "AllAccessDisabled":
		return OwnershipNoAccess, nil
	default:
		return 0, fmt.Errorf("handlers: probe ownership of bucket %q: %w", bucket, err)
	}
}

func probeEncryption(ctx context.Context, client awsapi.S3API, bucket string) (BucketEncryption, error) {
	out, err := client.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		switch apiErrorCode(err) {
		case "ServerSideEncryptionConfigurationNotFoundError":
			return BucketEncryption{Type: EncryptionNone}, nil
		case "NoSuchBucket":
			return BucketEncryption{Type: EncryptionBucketMissing}, nil
		case "AccessDenied", "AllAccessDisabled":
			return BucketEncryption{Type: EncryptionAccessDenied}, nil
		default:
			return BucketEncryption{}, fmt.Errorf("handlers: probe encryption of bucket %q: %w", bucket, err)
		}
	}

	if out.ServerSideEncryptionConfiguration == nil ||
		len(out.ServerSideEncryptionConfiguration.Rules) == 0 {
		return BucketEncryption{Type: EncryptionNone}, nil
	}

	defaults := out.ServerSideEncryptionConfiguration.Rules[0].ApplyServerSideEncryptionByDefault
	if defaults == nil {
		return BucketEncryption{Type: EncryptionNone}, nil
	}

	switch defaults.SSEAlgorithm {
	case s3types.ServerSideEncryptionAes256:
		return BucketEncryption{Type: EncryptionAES256}, nil
	case s3types.ServerSideEncryptionAwsKms:
		return BucketEncryption{
			Type:     EncryptionKMS,
			KMSKeyID: aws.ToString(defaults.KMSMasterKeyID),
		}, nil
	default:
		return BucketEncryption{Type: EncryptionNone}, nil
	}
}

// apiErrorCode extracts the service error code, or "" when err is nil or not
// a service error.
func apiErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
