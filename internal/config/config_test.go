package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.ProjectID = "demo-project"
	cfg.TLS.Domain = "chat.example.com"
	cfg.App.APIKey = "sk-or-test"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "us-central1", cfg.Region)
	assert.Equal(t, "us-central1-a", cfg.Zone)
	assert.Equal(t, "open-webui-cluster", cfg.ClusterName)
	assert.Equal(t, 90, cfg.Storage.RetentionDays)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.App.APIBaseURL)
	assert.True(t, cfg.Restore.Enabled)
	assert.False(t, cfg.Restore.BlockOnFailure)
	assert.Contains(t, cfg.Services.Enable, "container.googleapis.com")
}

func TestBucketName(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.BucketName())

	cfg.ProjectID = "demo-project"
	assert.Equal(t, "demo-project-open-webui-backups", cfg.BucketName())

	cfg.Storage.Bucket = "custom"
	assert.Equal(t, "custom", cfg.BucketName())
}

func TestLocation(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "us-central1-a", cfg.Location())
	assert.Equal(t, "projects/demo-project/locations/us-central1-a/clusters/open-webui-cluster", cfg.ClusterPath())

	cfg.Zone = ""
	assert.Equal(t, "us-central1", cfg.Location())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvProjectID:     "env-project",
		EnvRegion:        "europe-west1",
		EnvZone:          "europe-west1-b",
		EnvBackupBucket:  "env-bucket",
		EnvDomainName:    "webui.example.org",
		EnvAPIKey:        "sk-env",
		EnvClusterName:   "",
		EnvStorageSecret: "hmac-secret",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	cfg.applyEnv(lookup)

	assert.Equal(t, "env-project", cfg.ProjectID)
	assert.Equal(t, "europe-west1", cfg.Region)
	assert.Equal(t, "europe-west1-b", cfg.Zone)
	assert.Equal(t, "env-bucket", cfg.BucketName())
	assert.Equal(t, "webui.example.org", cfg.TLS.Domain)
	assert.Equal(t, "sk-env", cfg.App.APIKey)
	assert.Equal(t, "hmac-secret", cfg.Storage.SecretKey)
	// empty values do not clobber defaults
	assert.Equal(t, DefaultClusterName, cfg.ClusterName)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing project", mutate: func(c *Config) { c.ProjectID = "" }, wantErr: "project_id is required"},
		{name: "zone outside region", mutate: func(c *Config) { c.Zone = "europe-west1-b" }, wantErr: "is not in region"},
		{name: "bad cluster name", mutate: func(c *Config) { c.ClusterName = "Open_WebUI" }, wantErr: "cluster_name"},
		{name: "missing domain", mutate: func(c *Config) { c.TLS.Domain = "" }, wantErr: "tls.domain is required"},
		{name: "bad domain", mutate: func(c *Config) { c.TLS.Domain = "not a domain" }, wantErr: "not a valid DNS name"},
		{name: "missing api key", mutate: func(c *Config) { c.App.APIKey = "" }, wantErr: "api_key"},
		{name: "api key from secret manager", mutate: func(c *Config) { c.App.APIKey = ""; c.App.APIKeySecretID = "openrouter" }},
		{name: "half hmac", mutate: func(c *Config) { c.Storage.AccessKey = "GOOG1" }, wantErr: "must be set together"},
		{name: "bad workload kind", mutate: func(c *Config) { c.App.WorkloadKind = "DaemonSet" }, wantErr: "workload_kind"},
		{name: "bad volume size", mutate: func(c *Config) { c.App.VolumeSize = "ten gigs" }, wantErr: "volume_size"},
		{name: "node bounds", mutate: func(c *Config) { c.Cluster.NodeCount = 5 }, wantErr: "min_nodes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project_id is required")
	assert.Contains(t, err.Error(), "tls.domain is required")
	assert.Contains(t, err.Error(), "api_key")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFilename)
	content := `project_id: file-project
cluster_name: file-cluster
tls:
  domain: chat.example.com
app:
  api_key: sk-file
cluster:
  machine_type: e2-standard-4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	t.Setenv(EnvClusterName, "env-cluster")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-project", cfg.ProjectID)
	assert.Equal(t, "env-cluster", cfg.ClusterName, "environment overrides file")
	assert.Equal(t, "e2-standard-4", cfg.Cluster.MachineType)
	assert.Equal(t, 50, cfg.Cluster.DiskSizeGB, "defaults survive partial file")
	assert.Equal(t, "open-webui", cfg.App.Namespace)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("project_id: [unterminated"), 0600))

	_, err := LoadWithoutValidation(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestFindConfigFrom(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, DefaultConfigFilename), []byte("{}"), 0600))

	path, err := findConfigFrom(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, DefaultConfigFilename), path)
}

func TestSave_StripsSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.SecretKey = "hmac"
	path := filepath.Join(t.TempDir(), "out.yaml")

	require.NoError(t, Save(cfg, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-or-test")
	assert.NotContains(t, string(data), "hmac")
	assert.Equal(t, "sk-or-test", cfg.App.APIKey, "caller's config is untouched")
}
