package config

import "os"

// Environment variables consulted by ApplyEnv.
const (
	EnvProjectID       = "PROJECT_ID"
	EnvRegion          = "REGION"
	EnvZone            = "ZONE"
	EnvClusterName     = "CLUSTER_NAME"
	EnvBackupBucket    = "BACKUP_BUCKET"
	EnvDomainName      = "DOMAIN_NAME"
	EnvACMEEmail       = "ACME_EMAIL"
	EnvAPIKey          = "OPENROUTER_API_KEY"
	EnvAPIKeySecretID  = "OPENROUTER_API_KEY_SECRET"
	EnvCredentials     = "GOOGLE_APPLICATION_CREDENTIALS"
	EnvStorageEndpoint = "STORAGE_ENDPOINT"
	EnvStorageKey      = "STORAGE_HMAC_ACCESS_KEY"
	EnvStorageSecret   = "STORAGE_HMAC_SECRET"
	EnvStateDir        = "WEBUI_GKE_STATE_DIR"
)

// ApplyEnv overrides fields from environment variables. Unset or empty
// variables leave the current value untouched.
func (c *Config) ApplyEnv() {
	c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set(EnvProjectID, &c.ProjectID)
	set(EnvRegion, &c.Region)
	set(EnvZone, &c.Zone)
	set(EnvClusterName, &c.ClusterName)
	set(EnvBackupBucket, &c.Storage.Bucket)
	set(EnvDomainName, &c.TLS.Domain)
	set(EnvACMEEmail, &c.TLS.ACMEEmail)
	set(EnvAPIKey, &c.App.APIKey)
	set(EnvAPIKeySecretID, &c.App.APIKeySecretID)
	set(EnvCredentials, &c.CredentialsFile)
	set(EnvStorageEndpoint, &c.Storage.Endpoint)
	set(EnvStorageKey, &c.Storage.AccessKey)
	set(EnvStorageSecret, &c.Storage.SecretKey)
	set(EnvStateDir, &c.StateDir)
}
