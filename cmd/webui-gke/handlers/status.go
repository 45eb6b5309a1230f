package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/webui-gke/internal/platform/objectstore"
	"github.com/imamik/webui-gke/internal/ui/tui"
	"github.com/imamik/webui-gke/internal/util/async"
	"github.com/imamik/webui-gke/internal/util/naming"
)

// Status handles the status command. It reads the state store and the
// bucket concurrently; nothing in the cloud or the cluster is queried or changed.
func Status(ctx context.Context, opts Options) error {
	env, err := setup(ctx, opts, false)
	if err != nil {
		return err
	}
	defer env.close(ctx)

	s, err := collectStatus(ctx, env)
	if err != nil {
		return err
	}
	fmt.Fprint(output, tui.NewRenderer(isInteractive()).Status(*s))
	return nil
}

func collectStatus(ctx context.Context, env *environment) (*tui.Status, error) {
	pCtx := env.newContext(ctx)
	s := &tui.Status{
		Environment: pCtx.Environment(),
		ClusterName: env.cfg.ClusterName,
		Location:    env.cfg.Location(),
		Domain:      env.cfg.TLS.Domain,
	}

	var backupErr error
	err := async.Run(ctx,
		async.Task{Name: "state", Func: func(ctx context.Context) error {
			var err error
			if s.Target, err = env.store.GetTarget(ctx, s.Environment); err != nil {
				return err
			}
			s.Resources, err = env.store.ListResources(ctx, "")
			return err
		}},
		async.Task{Name: "backup", Func: func(ctx context.Context) error {
			info, err := env.cloud.Objects.Stat(ctx, naming.LatestSnapshot)
			switch {
			case err == nil:
				s.Backup = &tui.Backup{Key: info.Key, Size: info.Size, Updated: info.Updated}
			case !objectstore.IsNotFound(err):
				backupErr = err
			}
			return nil
		}},
	)
	if err != nil {
		return nil, err
	}
	if backupErr != nil {
		pCtx.Observer.Printf("[Status] Could not read %s: %v", naming.LatestSnapshot, backupErr)
	}
	return s, nil
}

