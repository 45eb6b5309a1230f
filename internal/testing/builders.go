package testing

import (
	"maps"
	"slices"

	"github.com/imamik/webui-gke/internal/config"
	"github.com/imamik/webui-gke/internal/provisioning"
)

// ConfigBuilder provides a fluent interface for constructing test configs.
// Each method returns a new builder (immutable) for chaining.
type ConfigBuilder struct {
	cfg config.Config
}

// NewConfigBuilder creates a new ConfigBuilder starting from config.Default
// with a project, domain and API key filled in, so Build passes validation.
func NewConfigBuilder() *ConfigBuilder {
	cfg := *config.Default()
	cfg.ProjectID = "demo-project"
	cfg.TLS.Domain = "chat.example.com"
	cfg.App.APIKey = "sk-or-test"
	return &ConfigBuilder{cfg: cfg}
}

// WithProject sets the GCP project.
func (b *ConfigBuilder) WithProject(project string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.ProjectID = project
	return newBuilder
}

// WithClusterName sets the cluster name.
func (b *ConfigBuilder) WithClusterName(name string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.ClusterName = name
	return newBuilder
}

// WithDomain sets the TLS domain.
func (b *ConfigBuilder) WithDomain(domain string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.TLS.Domain = domain
	return newBuilder
}

// WithStateDir sets the local state directory.
func (b *ConfigBuilder) WithStateDir(dir string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.StateDir = dir
	return newBuilder
}

// WithBucket sets the backup bucket.
func (b *ConfigBuilder) WithBucket(bucket string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Storage.Bucket = bucket
	return newBuilder
}

// WithRestore toggles the restore gate and its failure behaviour.
func (b *ConfigBuilder) WithRestore(enabled, blockOnFailure bool) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.Restore.Enabled = enabled
	newBuilder.cfg.Restore.BlockOnFailure = blockOnFailure
	return newBuilder
}

// WithACMEEmail enables the ACME ClusterIssuer.
func (b *ConfigBuilder) WithACMEEmail(email string) *ConfigBuilder {
	newBuilder := b.clone()
	newBuilder.cfg.TLS.ACMEEmail = email
	return newBuilder
}

// Build returns a copy of the constructed config.
func (b *ConfigBuilder) Build() *config.Config {
	cfg := b.clone().cfg
	return &cfg
}

func (b *ConfigBuilder) clone() *ConfigBuilder {
	cfg := b.cfg
	cfg.Services.Enable = slices.Clone(b.cfg.Services.Enable)
	return &ConfigBuilder{cfg: cfg}
}

// ResourceBuilder builds provisioning.ManagedResource values for desired sets.
type ResourceBuilder struct {
	r provisioning.ManagedResource
}

// NewResource starts a cloud resource of type typ named name in project "demo".
func NewResource(typ, name string) *ResourceBuilder {
	return &ResourceBuilder{r: provisioning.ManagedResource{
		Ref: provisioning.Ref{
			Kind:  provisioning.KindCloud,
			Type:  typ,
			Name:  name,
			Scope: provisioning.Scope{Project: "demo"},
		},
		Policy:     provisioning.PolicyEphemeral,
		Descriptor: map[string]string{},
	}}
}

// Kind sets the backing-store kind.
func (b *ResourceBuilder) Kind(k provisioning.Kind) *ResourceBuilder {
	b.r.Kind = k
	return b
}

// Scope replaces the scope.
func (b *ResourceBuilder) Scope(s provisioning.Scope) *ResourceBuilder {
	b.r.Scope = s
	return b
}

// Protected marks the resource persistent-protected.
func (b *ResourceBuilder) Protected() *ResourceBuilder {
	b.r.Policy = provisioning.PolicyProtected
	return b
}

// Set adds a descriptor key.
func (b *ResourceBuilder) Set(key, value string) *ResourceBuilder {
	b.r.Descriptor[key] = value
	return b
}

// DependsOn adds dependencies by key.
func (b *ResourceBuilder) DependsOn(keys ...string) *ResourceBuilder {
	b.r.DependsOn = append(b.r.DependsOn, keys...)
	return b
}

// Data attaches an unpersisted payload.
func (b *ResourceBuilder) Data(key string, value []byte) *ResourceBuilder {
	if b.r.Data == nil {
		b.r.Data = map[string][]byte{}
	}
	b.r.Data[key] = value
	return b
}

// Build returns the resource. The builder may be reused.
func (b *ResourceBuilder) Build() provisioning.ManagedResource {
	r := b.r
	r.Descriptor = maps.Clone(b.r.Descriptor)
	r.DependsOn = slices.Clone(b.r.DependsOn)
	r.Data = maps.Clone(b.r.Data)
	return r
}
