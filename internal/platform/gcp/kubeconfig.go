package gcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// TokenSource returns OAuth2 tokens for the GKE API server, from the
// credentials file when set and Application Default Credentials otherwise.
func TokenSource(ctx context.Context, credentialsFile string) (oauth2.TokenSource, error) {
	if credentialsFile == "" {
		ts, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("failed to find default credentials: %w", err)
		}
		return ts, nil
	}

	creds, err := credentialsFromFile(ctx, credentialsFile)
	if err != nil {
		return nil, err
	}
	return creds.TokenSource, nil
}

// KubeconfigInput is what BuildKubeconfig needs to reach a cluster.
type KubeconfigInput struct {
	Name string
	// Endpoint is the API server IP or host, without scheme.
	Endpoint string
	// CACertificate is the base64-encoded cluster CA, as GKE returns it.
	CACertificate string
	Token         string
}

// BuildKubeconfig renders a kubeconfig that authenticates with a bearer token.
func BuildKubeconfig(in KubeconfigInput) ([]byte, error) {
	if in.Endpoint == "" {
		return nil, fmt.Errorf("cluster %s has no endpoint yet", in.Name)
	}
	ca, err := base64.StdEncoding.DecodeString(in.CACertificate)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cluster CA of %s: %w", in.Name, err)
	}

	cfg := clientcmdapi.NewConfig()
	cfg.Clusters[in.Name] = &clientcmdapi.Cluster{
		Server:                   "https://" + in.Endpoint,
		CertificateAuthorityData: ca,
	}
	cfg.AuthInfos[in.Name] = &clientcmdapi.AuthInfo{Token: in.Token}
	cfg.Contexts[in.Name] = &clientcmdapi.Context{Cluster: in.Name, AuthInfo: in.Name}
	cfg.CurrentContext = in.Name

	return clientcmd.Write(*cfg)
}

// ClusterKubeconfig fetches a token and renders the kubeconfig for the
// cluster endpoint and CA the cluster driver recorded.
func ClusterKubeconfig(ts oauth2.TokenSource, name, endpoint, ca string) ([]byte, error) {
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	return BuildKubeconfig(KubeconfigInput{Name: name, Endpoint: endpoint, CACertificate: ca, Token: tok.AccessToken})
}

func credentialsFromFile(ctx context.Context, path string) (*google.Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return creds, nil
}
