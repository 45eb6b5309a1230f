// Package handlers implements the business logic for CLI commands.
//
// Each handler loads the configuration, wires the cloud, storage and cluster
// backends into an environment, and runs a provisioning pipeline. The
// constructors are package variables so tests can substitute fakes.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/mattn/go-isatty"
	"golang.org/x/oauth2"

	"github.com/imamik/webui-gke/internal/config"
	"github.com/imamik/webui-gke/internal/logging"
	"github.com/imamik/webui-gke/internal/metrics"
	"github.com/imamik/webui-gke/internal/platform/gcp"
	"github.com/imamik/webui-gke/internal/platform/objectstore"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/cluster"
	"github.com/imamik/webui-gke/internal/provisioning/locate"
	"github.com/imamik/webui-gke/internal/state"
	"github.com/imamik/webui-gke/internal/util/labels"
	"github.com/imamik/webui-gke/internal/util/naming"
)

// lockTTL bounds how long a crashed run keeps others out.
const lockTTL = 2 * time.Hour

// Options are the flags every command shares.
type Options struct {
	ConfigPath  string
	Verbose     bool
	LogFormat   string
	MetricsFile string
}

// Cloud is the set of backends outside the cluster.
type Cloud struct {
	Drivers locate.Drivers
	Objects objectstore.Store
	Tokens  cluster.TokenSourceFunc
	Secrets gcp.SecretAccessor
	Close   func()
}

// Factory function variables - can be replaced in tests.
var (
	loadConfig = config.LoadWithoutValidation
	findConfig = config.FindConfigFile
	newLogger  = logging.New
	openState  = func(dir string) (*state.Store, error) {
		return state.Open(dir, naming.StateDatabase())
	}
	newCloud = connectCloud

	connectCluster cluster.Connector = cluster.Connect

	isInteractive = isInteractiveTTY
)

// environment is everything one command run needs.
type environment struct {
	cfg      *config.Config
	log      logr.Logger
	store    *state.Store
	cloud    *Cloud
	recorder *metrics.Recorder
	opts     Options

	lock    *state.Lock
	closers []func()
}

// setup loads and validates the configuration, opens the state store and
// connects the cloud backends. locked takes the run lock.
func setup(ctx context.Context, opts Options, locked bool) (*environment, error) {
	cfg, err := resolveConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	format := opts.LogFormat
	if format == "" && !isInteractive() {
		format = "json"
	}
	level := "info"
	if opts.Verbose {
		level = "debug"
	}
	log, sync, err := newLogger(logging.Options{Level: level, Format: format})
	if err != nil {
		return nil, err
	}

	env := &environment{cfg: cfg, log: log, opts: opts, recorder: metrics.NewRecorder()}
	env.closers = append(env.closers, sync)

	env.store, err = openState(cfg.StateDir)
	if err != nil {
		env.close(ctx)
		return nil, err
	}
	env.closers = append(env.closers, func() { _ = env.store.Close() })

	if locked {
		env.lock, err = env.store.Lock(ctx, lockTTL)
		if err != nil {
			env.close(ctx)
			return nil, err
		}
	}

	env.cloud, err = newCloud(ctx, cfg)
	if err != nil {
		env.close(ctx)
		return nil, err
	}
	if env.cloud.Close != nil {
		env.closers = append(env.closers, env.cloud.Close)
	}
	return env, nil
}

// resolveConfig finds, loads and validates the configuration. Without a
// path, webui-gke.yaml is searched for; its absence is fine since every
// required field can come from the environment.
func resolveConfig(path string) (*config.Config, error) {
	if path == "" {
		found, err := findConfig()
		switch {
		case err == nil:
			path = found
		case !errors.Is(err, config.ErrConfigNotFound):
			return nil, err
		}
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// newContext creates a provisioning context observed by the metrics recorder
// and either the logger or the extra observers, which then own the terminal.
func (e *environment) newContext(ctx context.Context, extra ...provisioning.Observer) *provisioning.Context {
	observers := provisioning.MultiObserver{e.recorder.Observer()}
	if len(extra) == 0 {
		observers = append(observers, provisioning.NewLogObserver(e.log))
	}
	observers = append(observers, extra...)

	return provisioning.NewContext(logr.NewContext(ctx, e.log), e.cfg, e.store, observers)
}

// close writes metrics, releases the lock and closes the backends.
func (e *environment) close(ctx context.Context) {
	if e.opts.MetricsFile != "" {
		if err := e.recorder.WriteTextfile(e.opts.MetricsFile, time.Now()); err != nil {
			e.log.Error(err, "failed to write metrics")
		}
	}
	if e.lock != nil {
		if err := e.lock.Release(context.WithoutCancel(ctx)); err != nil {
			e.log.Error(err, "failed to release state lock")
		}
		e.lock = nil
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// connectCloud builds the Google Cloud clients and the object store.
func connectCloud(ctx context.Context, cfg *config.Config) (*Cloud, error) {
	clients := gcp.NewClients(cfg, config.LoadTimeouts())
	cloudLabels := labels.NewLabelBuilder(cfg.ClusterName).BuildCloud()

	drivers, err := clients.Drivers(ctx, cloudLabels)
	if err != nil {
		clients.Close()
		return nil, err
	}

	objects, err := newObjectStore(ctx, cfg, clients)
	if err != nil {
		clients.Close()
		return nil, err
	}
	drivers[objectstore.TypeBucket] = objectstore.NewBucketDriver(objects, cloudLabels)

	return &Cloud{
		Drivers: drivers,
		Objects: objects,
		Tokens: func(ctx context.Context) (oauth2.TokenSource, error) {
			return gcp.TokenSource(ctx, cfg.CredentialsFile)
		},
		Secrets: gcp.LazySecrets{Clients: clients},
		Close:   clients.Close,
	}, nil
}

// newObjectStore selects the S3-compatible backend when HMAC keys are
// configured and the Cloud Storage JSON API otherwise.
func newObjectStore(ctx context.Context, cfg *config.Config, clients *gcp.Clients) (objectstore.Store, error) {
	if cfg.Storage.UseS3() {
		return objectstore.NewS3Store(cfg.Storage.Endpoint, cfg.Storage.Location, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.BucketName())
	}
	return objectstore.NewGCSStore(ctx, cfg.ProjectID, cfg.BucketName(), clients.Options()...)
}

func isInteractiveTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
