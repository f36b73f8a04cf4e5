package docker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/input-output-hk/catalyst-forge-libs/fs"

	"github.com/input-output-hk/catalyst-forge-libs/assets/awsapi"
)

// EnvCredsFile names the optional registry credentials configuration file.
const EnvCredsFile = "ASSETS_DOCKER_CREDS_FILE"

// CredentialsConfig maps registry domains to credential sources. Operators
// use it to log in to registries that are not the destination's own ECR, or
// to ECR registries reachable only through a separate role.
type CredentialsConfig struct {
	// Version is the configuration schema version
	Version string `json:"version"`

	// DomainCredentials maps a registry domain to its credential source
	DomainCredentials map[string]DomainCredentialSource `json:"domainCredentials"`
}

// DomainCredentialSource is one registry's credential source: either a
// Secrets Manager secret holding a username and password, or an ECR
// authorization token lookup.
type DomainCredentialSource struct {
	// SecretsManagerSecretID names a secret with username/password fields
	SecretsManagerSecretID string `json:"secretsManagerSecretId,omitempty"`

	// SecretsUsernameField overrides the username field name (default "username")
	SecretsUsernameField string `json:"secretsUsernameField,omitempty"`

	// SecretsPasswordField overrides the password field name (default "password")
	SecretsPasswordField string `json:"secretsPasswordField,omitempty"`

	// ECRRepository selects an ECR authorization token lookup instead
	ECRRepository bool `json:"ecrRepository,omitempty"`

	// AssumeRoleARN is an optional role to assume for the lookup
	AssumeRoleARN string `json:"assumeRoleArn,omitempty"`

	// Region overrides the lookup region
	Region string `json:"region,omitempty"`
}

// Credentials is a resolved username/password pair.
type Credentials struct {
	Username string
	Password string
}

// LoadCredentialsConfig reads the configuration named by EnvCredsFile.
// Returns nil when the variable is unset.
func LoadCredentialsConfig(fsys fs.Filesystem) (*CredentialsConfig, error) {
	path := getenv(EnvCredsFile)
	if path == "" {
		return nil, nil
	}

	raw, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("docker: read credentials config %q: %w", path, err)
	}

	var cfg CredentialsConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("docker: parse credentials config %q: %w", path, err)
	}
	return &cfg, nil
}

// Obtain resolves credentials for a registry domain. The second return value
// reports whether the domain is configured at all.
func (c *CredentialsConfig) Obtain(ctx context.Context, client awsapi.Client, domain string) (*Credentials, bool, error) {
	source, ok := c.DomainCredentials[domain]
	if !ok {
		return nil, false, nil
	}

	options := awsapi.ClientOptions{
		Region:        source.Region,
		AssumeRoleARN: source.AssumeRoleARN,
		Quiet:         true,
	}

	switch {
	case source.SecretsManagerSecretID != "":
		creds, err := secretCredentials(ctx, client, options, source)
		if err != nil {
			return nil, true, err
		}
		return creds, true, nil

	case source.ECRRepository:
		ecrClient, err := client.ECRClient(ctx, options)
		if err != nil {
			return nil, true, err
		}
		username, password, _, err := ecrCredentials(ctx, ecrClient)
		if err != nil {
			return nil, true, err
		}
		return &Credentials{Username: username, Password: password}, true, nil

	default:
		return nil, true, fmt.Errorf("docker: credential source for %q names no secret and no ECR lookup", domain)
	}
}

func secretCredentials(
	ctx context.Context,
	client awsapi.Client,
	options awsapi.ClientOptions,
	source DomainCredentialSource,
) (*Credentials, error) {
	sm, err := client.SecretsManagerClient(ctx, options)
	if err != nil {
		return nil, err
	}

	out, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(source.SecretsManagerSecretID),
	})
	if err != nil {
		return nil, fmt.Errorf("docker: read secret %q: %w", source.SecretsManagerSecretID, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("docker: secret %q has no string value", source.SecretsManagerSecretID)
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &fields); err != nil {
		return nil, fmt.Errorf("docker: parse secret %q: %w", source.SecretsManagerSecretID, err)
	}

	usernameField := source.SecretsUsernameField
	if usernameField == "" {
		usernameField = "username"
	}
	passwordField := source.SecretsPasswordField
	if passwordField == "" {
		passwordField = "password"
	}

	username, ok := fields[usernameField]
	if !ok {
		return nil, fmt.Errorf("docker: secret %q is missing field %q", source.SecretsManagerSecretID, usernameField)
	}
	password, ok := fields[passwordField]
	if !ok {
		return nil, fmt.Errorf("docker: secret %q is missing field %q", source.SecretsManagerSecretID, passwordField)
	}

	return &Credentials{Username: username, Password: password}, nil
}
