package gcp

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// SecretAccessor reads secret payloads from Secret Manager.
type SecretAccessor interface {
	AccessSecret(ctx context.Context, project, secretID string) ([]byte, error)
}

type secretClient struct {
	c *secretmanager.Client
}

// AccessSecret returns the payload of the latest version of secretID.
func (s secretClient) AccessSecret(ctx context.Context, project, secretID string) ([]byte, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", project, secretID)
	resp, err := s.c.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to access secret %s: %w", secretID, err)
	}
	if resp.GetPayload() == nil || len(resp.GetPayload().GetData()) == 0 {
		return nil, fmt.Errorf("secret %s has an empty payload", secretID)
	}
	return resp.GetPayload().GetData(), nil
}

// LazySecrets is a SecretAccessor that creates the Secret Manager client on
// first use, so runs that never read a secret never authenticate to it.
type LazySecrets struct {
	Clients *Clients
}

// AccessSecret implements SecretAccessor.
func (l LazySecrets) AccessSecret(ctx context.Context, project, secretID string) ([]byte, error) {
	s, err := l.Clients.Secrets(ctx)
	if err != nil {
		return nil, err
	}
	return s.AccessSecret(ctx, project, secretID)
}
