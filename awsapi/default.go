package awsapi

import (
	"context"
	"fmt"
	"os/user"
	"regexp"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"

	asseterrors "github.com/input-output-hk/catalyst-forge-libs/assets/errors"
)

// userAgent identifies this tool in AWS request logs.
const userAgent = "catalyst-assets"

// DefaultClient is the Client implementation backed by the AWS SDK with the
// default credential chain. Identity discovery is cached for the lifetime of
// the client.
type DefaultClient struct {
	profile string

	mu      sync.Mutex
	base    *aws.Config
	account *Account
}

// DefaultClientOption configures a DefaultClient.
type DefaultClientOption func(*DefaultClient)

// WithProfile selects a shared-config profile for the default credential
// chain.
func WithProfile(profile string) DefaultClientOption {
	return func(c *DefaultClient) {
		c.profile = profile
	}
}

// NewDefaultClient creates a Client using the AWS SDK default configuration.
func NewDefaultClient(opts ...DefaultClientOption) *DefaultClient {
	c := &DefaultClient{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// baseConfig loads and caches the default AWS configuration.
func (c *DefaultClient) baseConfig(ctx context.Context) (aws.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.base != nil {
		return *c.base, nil
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithAppID(userAgent),
	}
	if c.profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(c.profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, asseterrors.NewError("aws", err)
	}
	c.base = &cfg
	return cfg, nil
}

// scopedConfig derives a configuration for the given client options,
// assuming a role when one is configured.
func (c *DefaultClient) scopedConfig(ctx context.Context, options ClientOptions) (aws.Config, error) {
	cfg, err := c.baseConfig(ctx)
	if err != nil {
		return aws.Config{}, err
	}

	if options.Region != "" {
		cfg.Region = options.Region
	}

	if options.AssumeRoleARN != "" {
		stsClient := sts.NewFromConfig(cfg)
		provider := stscreds.NewAssumeRoleProvider(stsClient, options.AssumeRoleARN,
			func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = fmt.Sprintf("%s-%s", userAgent, safeUsername())
				if options.AssumeRoleExternalID != "" {
					o.ExternalID = aws.String(options.AssumeRoleExternalID)
				}
				applyAdditionalOptions(o, options.AssumeRoleAdditionalOptions)
			})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	return cfg, nil
}

// applyAdditionalOptions maps the manifest's free-form AssumeRole options
// onto the SDK provider options. Session tags are also registered as
// transitive so they survive role chaining, matching the destination
// contract.
func applyAdditionalOptions(o *stscreds.AssumeRoleOptions, extra map[string]any) {
	if len(extra) == 0 {
		return
	}

	if rawTags, ok := extra["Tags"].([]any); ok {
		var transitive []string
		for _, rawTag := range rawTags {
			tag, ok := rawTag.(map[string]any)
			if !ok {
				continue
			}
			key, _ := tag["Key"].(string)
			value, _ := tag["Value"].(string)
			if key == "" {
				continue
			}
			o.Tags = append(o.Tags, ststypes.Tag{
				Key:   aws.String(key),
				Value: aws.String(value),
			})
			transitive = append(transitive, key)
		}
		o.TransitiveTagKeys = transitive
	}

	if rawKeys, ok := extra["TransitiveTagKeys"].([]any); ok {
		var keys []string
		for _, rawKey := range rawKeys {
			if key, ok := rawKey.(string); ok {
				keys = append(keys, key)
			}
		}
		o.TransitiveTagKeys = keys
	}
}

// DiscoverPartition implements Client.
func (c *DefaultClient) DiscoverPartition(ctx context.Context) (string, error) {
	account, err := c.DiscoverCurrentAccount(ctx)
	if err != nil {
		return "", err
	}
	return account.Partition, nil
}

// DiscoverDefaultRegion implements Client.
func (c *DefaultClient) DiscoverDefaultRegion(ctx context.Context) (string, error) {
	cfg, err := c.baseConfig(ctx)
	if err != nil {
		return "", err
	}
	if cfg.Region == "" {
		return "us-east-1", nil
	}
	return cfg.Region, nil
}

// DiscoverCurrentAccount implements Client. The result is cached for the
// lifetime of the client.
func (c *DefaultClient) DiscoverCurrentAccount(ctx context.Context) (Account, error) {
	c.mu.Lock()
	cached := c.account
	c.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	account, err := c.getAccount(ctx, ClientOptions{})
	if err != nil {
		return Account{}, err
	}

	c.mu.Lock()
	c.account = &account
	c.mu.Unlock()
	return account, nil
}

// DiscoverTargetAccount implements Client.
func (c *DefaultClient) DiscoverTargetAccount(ctx context.Context, options ClientOptions) (Account, error) {
	return c.getAccount(ctx, options)
}

func (c *DefaultClient) getAccount(ctx context.Context, options ClientOptions) (Account, error) {
	cfg, err := c.scopedConfig(ctx, options)
	if err != nil {
		return Account{}, err
	}

	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Account{}, asseterrors.NewError("aws", err)
	}
	if out.Account == nil || out.Arn == nil {
		return Account{}, asseterrors.NewError("aws",
			fmt.Errorf("unrecognized caller identity response"))
	}

	parts := strings.Split(aws.ToString(out.Arn), ":")
	if len(parts) < 2 {
		return Account{}, asseterrors.NewError("aws",
			fmt.Errorf("malformed caller ARN %q", aws.ToString(out.Arn)))
	}

	return Account{
		ID:        aws.ToString(out.Account),
		Partition: parts[1],
	}, nil
}

// S3Client implements Client.
func (c *DefaultClient) S3Client(ctx context.Context, options ClientOptions) (S3API, error) {
	cfg, err := c.scopedConfig(ctx, options)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg)
	return &defaultS3{
		Client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// ECRClient implements Client.
func (c *DefaultClient) ECRClient(ctx context.Context, options ClientOptions) (ECRAPI, error) {
	cfg, err := c.scopedConfig(ctx, options)
	if err != nil {
		return nil, err
	}
	return ecr.NewFromConfig(cfg), nil
}

// SecretsManagerClient implements Client.
func (c *DefaultClient) SecretsManagerClient(ctx context.Context, options ClientOptions) (SecretsManagerAPI, error) {
	cfg, err := c.scopedConfig(ctx, options)
	if err != nil {
		return nil, err
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// defaultS3 augments the raw S3 client with a multipart-capable Upload.
type defaultS3 struct {
	*s3.Client
	uploader *manager.Uploader
}

// Upload implements S3API using the transfer manager, which switches to
// multipart uploads for large bodies.
func (d *defaultS3) Upload(ctx context.Context, params *s3.PutObjectInput) error {
	if _, err := d.uploader.Upload(ctx, params); err != nil {
		return asseterrors.NewError("upload", err)
	}
	return nil
}

var invalidSessionNameChars = regexp.MustCompile(`[^\w+=,.@-]`)

// safeUsername returns the current username with characters that are invalid
// in an STS role session name replaced.
func safeUsername() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return "noname"
	}
	return invalidSessionNameChars.ReplaceAllString(u.Username, "@")
}

// Interface checks against the SDK clients.
var (
	_ ECRAPI            = (*ecr.Client)(nil)
	_ SecretsManagerAPI = (*secretsmanager.Client)(nil)
	_ S3API             = (*defaultS3)(nil)
	_ Client            = (*DefaultClient)(nil)
)
