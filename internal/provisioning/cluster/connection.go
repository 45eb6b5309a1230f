package cluster

import (
	"github.com/go-logr/logr"

	"github.com/imamik/webui-gke/internal/config"
	"github.com/imamik/webui-gke/internal/platform/helm"
	"github.com/imamik/webui-gke/internal/platform/k8s"
	"github.com/imamik/webui-gke/internal/provisioning"
	"github.com/imamik/webui-gke/internal/provisioning/locate"
)

// Connection is an open connection to the cluster.
type Connection struct {
	Kube     *k8s.Client
	Releases *helm.ReleaseDriver
}

// Drivers returns the drivers of every cluster resource type.
func (c *Connection) Drivers() locate.Drivers {
	drivers := locate.Drivers(c.Kube.Drivers())
	drivers[helm.TypeRelease] = c.Releases
	return drivers
}

// Connector opens a Connection with kubeconfig.
type Connector func(ctx *provisioning.Context, kubeconfig []byte) (*Connection, error)

// Connect is the Connector for real clusters.
func Connect(ctx *provisioning.Context, kubeconfig []byte) (*Connection, error) {
	kube, err := k8s.NewClientFromBytes(kubeconfig)
	if err != nil {
		return nil, err
	}

	timeouts := ctx.Timeouts
	if timeouts == nil {
		timeouts = config.LoadTimeouts()
	}
	log := logr.FromContextOrDiscard(ctx)
	releases := helm.NewReleaseDriver(func(namespace string) (helm.Releaser, error) {
		return helm.NewClient(kubeconfig, namespace, timeouts.Release, log)
	})

	return &Connection{Kube: kube, Releases: releases}, nil
}

// Open returns a connection with the credentials of an earlier
// cluster-access phase. In a dry run against a cluster that does not exist
// yet it returns nil and records the skip.
func Open(ctx *provisioning.Context, connect Connector) (*Connection, error) {
	if len(ctx.State.Kubeconfig) == 0 && ctx.DryRun {
		ctx.RecordSkipped(ctx.PhaseName() + ": cluster not reachable yet")
		return nil, nil
	}
	kubeconfig, err := ctx.RequireKubeconfig()
	if err != nil {
		return nil, err
	}
	return connect(ctx, kubeconfig)
}
