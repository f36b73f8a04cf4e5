package handlers

import (
	"context"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/assets/awsapi"
	"github.com/input-output-hk/catalyst-forge-libs/assets/manifest"
)

// Environment placeholders accepted in destination fields. Manifests produced
// for a generic environment carry these instead of concrete values.
const (
	placeholderPartition = "${AWS::Partition}"
	placeholderAccountID = "${AWS::AccountId}"
	placeholderRegion    = "${AWS::Region}"

	placeholderPrefix = "${AWS::"
)

// resolver substitutes environment placeholders in destination fields.
// Identity discovery happens at most once per destination and only when a
// placeholder is actually present.
type resolver struct {
	aws awsapi.Client
}

// fileDestination resolves the placeholders of a file destination in place.
func (r resolver) fileDestination(ctx context.Context, dest manifest.FileDestination) (manifest.FileDestination, error) {
	err := r.resolve(ctx, dest.Destination,
		&dest.AssumeRoleARN, &dest.BucketName, &dest.ObjectKey)
	return dest, err
}

// imageDestination resolves the placeholders of an image destination in place.
func (r resolver) imageDestination(ctx context.Context, dest manifest.ImageDestination) (manifest.ImageDestination, error) {
	err := r.resolve(ctx, dest.Destination,
		&dest.AssumeRoleARN, &dest.RepositoryName, &dest.ImageTag)
	return dest, err
}

func (r resolver) resolve(ctx context.Context, dest manifest.Destination, fields ...*string) error {
	found := false
	for _, f := range fields {
		if strings.Contains(*f, placeholderPrefix) {
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	region := dest.Region
	if region == "" {
		discovered, err := r.aws.DiscoverDefaultRegion(ctx)
		if err != nil {
			return err
		}
		region = discovered
	}

	account, err := r.lookupAccount(ctx, dest, region)
	if err != nil {
		return err
	}

	replacer := strings.NewReplacer(
		placeholderPartition, account.Partition,
		placeholderAccountID, account.ID,
		placeholderRegion, region,
	)
	for _, f := range fields {
		*f = replacer.Replace(*f)
	}
	return nil
}

// lookupAccount discovers the account the destination refers to. When the
// destination names a concrete role the account behind that role is
// authoritative; a role ARN that itself still contains placeholders cannot be
// assumed yet, so the current credentials decide.
func (r resolver) lookupAccount(ctx context.Context, dest manifest.Destination, region string) (awsapi.Account, error) {
	if dest.AssumeRoleARN != "" && !strings.Contains(dest.AssumeRoleARN, placeholderPrefix) {
		return r.aws.DiscoverTargetAccount(ctx, awsapi.ClientOptions{
			Region:                      region,
			AssumeRoleARN:               dest.AssumeRoleARN,
			AssumeRoleExternalID:        dest.AssumeRoleExternalID,
			AssumeRoleAdditionalOptions: dest.AssumeRoleAdditionalOptions,
			Quiet:                       true,
		})
	}
	return r.aws.DiscoverCurrentAccount(ctx)
}
