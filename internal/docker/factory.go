package docker

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	"golang.org/x/sync/singleflight"

	"github.com/input-output-hk/catalyst-forge-libs/assets/awsapi"
	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/shell"
)

// Factory hands out logged-in Docker backends. Registry logins are performed
// at most once per endpoint for the factory's lifetime, with concurrent
// requests for the same endpoint coalesced onto one login. A factory is
// scoped to one publishing session; sessions never share login state.
type Factory struct {
	fsys fs.Filesystem

	group singleflight.Group

	mu       sync.Mutex
	loggedIn map[string]bool

	credsOnce sync.Once
	creds     *CredentialsConfig
	credsErr  error
}

// NewFactory creates a factory. The operator-provided registry credentials
// configuration is read from fsys on the first login, so manifests that never
// push an image never touch it.
func NewFactory(fsys fs.Filesystem) *Factory {
	return &Factory{
		fsys:     fsys,
		loggedIn: make(map[string]bool),
	}
}

// credentials loads the operator's credentials configuration once per
// factory; nil when none is configured.
func (f *Factory) credentials() (*CredentialsConfig, error) {
	f.credsOnce.Do(func() {
		f.creds, f.credsErr = LoadCredentialsConfig(f.fsys)
	})
	return f.creds, f.credsErr
}

// ForRegistry returns a backend that is logged in to the registry hosting
// repositoryURI. Credentials come from the operator's credentials config
// when the registry domain is listed there, otherwise from an ECR
// authorization token obtained with the given client.
func (f *Factory) ForRegistry(
	ctx context.Context,
	aws awsapi.Client,
	ecrClient awsapi.ECRAPI,
	repositoryURI string,
	publisher shell.EventPublisher,
	output shell.OutputDestination,
) (*Docker, error) {
	d := New(publisher, output)
	domain := registryDomain(repositoryURI)

	_, err, _ := f.group.Do(domain, func() (any, error) {
		f.mu.Lock()
		done := f.loggedIn[domain]
		f.mu.Unlock()
		if done {
			return nil, nil
		}

		if err := f.login(ctx, aws, ecrClient, domain, d); err != nil {
			return nil, err
		}

		f.mu.Lock()
		f.loggedIn[domain] = true
		f.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (f *Factory) login(
	ctx context.Context,
	aws awsapi.Client,
	ecrClient awsapi.ECRAPI,
	domain string,
	d *Docker,
) error {
	cfg, err := f.credentials()
	if err != nil {
		return err
	}
	if cfg != nil {
		creds, found, err := cfg.Obtain(ctx, aws, domain)
		if err != nil {
			return err
		}
		if found {
			return d.Login(ctx, creds.Username, creds.Password, domain)
		}
	}

	username, password, endpoint, err := ecrCredentials(ctx, ecrClient)
	if err != nil {
		return err
	}
	return d.Login(ctx, username, password, endpoint)
}

// ecrCredentials decodes an ECR authorization token into login credentials.
func ecrCredentials(ctx context.Context, ecrClient awsapi.ECRAPI) (username, password, endpoint string, err error) {
	out, err := ecrClient.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return "", "", "", fmt.Errorf("docker: obtain authorization token: %w", err)
	}
	if len(out.AuthorizationData) == 0 || out.AuthorizationData[0].AuthorizationToken == nil {
		return "", "", "", fmt.Errorf("docker: authorization token response is empty")
	}

	data := out.AuthorizationData[0]
	raw, err := base64.StdEncoding.DecodeString(*data.AuthorizationToken)
	if err != nil {
		return "", "", "", fmt.Errorf("docker: decode authorization token: %w", err)
	}

	username, password, found := strings.Cut(string(raw), ":")
	if !found {
		return "", "", "", fmt.Errorf("docker: malformed authorization token")
	}

	if data.ProxyEndpoint != nil {
		endpoint = *data.ProxyEndpoint
	}
	return username, password, endpoint, nil
}

// registryDomain extracts the registry host from a repository URI like
// "12345.dkr.ecr.us-east-1.amazonaws.com/repo".
func registryDomain(repositoryURI string) string {
	domain, _, _ := strings.Cut(repositoryURI, "/")
	return domain
}
