package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-datastore"
	levelds "github.com/ipfs/go-ds-leveldb"
	measure "github.com/ipfs/go-ds-measure"
	metricsprom "github.com/ipfs/go-metrics-prometheus"
	"github.com/samber/lo"
	ldbopts "github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/taskcoord/build"
	"github.com/filecoin-project/taskcoord/lib/harmony/harmonydb"
	"github.com/filecoin-project/taskcoord/lib/harmony/localsched"
	"github.com/filecoin-project/taskcoord/lib/harmony/reconcile"
	"github.com/filecoin-project/taskcoord/lib/harmony/taskorch"
	"github.com/filecoin-project/taskcoord/lib/harmony/taskstore"
	"github.com/filecoin-project/taskcoord/metrics"
	"github.com/filecoin-project/taskcoord/node/config"
)

// NodeID is the id this node writes into the owner column.
type NodeID string

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Start a task coordination node",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "listen",
			Usage: "host address and port the admin api will listen on, overrides Node.ListenAddress",
		},
		&cli.StringFlag{
			Name:  "node-id",
			Usage: "id of this node in the cluster, overrides Node.ID",
		},
		&cli.DurationFlag{
			Name:  "stop-timeout",
			Usage: "how long a graceful shutdown may take",
			Value: 30 * time.Second,
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := config.FromFile(cctx.String(FlagConfig), config.DefaultTaskCoord())
		if err != nil {
			return xerrors.Errorf("loading config: %w", err)
		}
		if cctx.IsSet("listen") {
			cfg.Node.ListenAddress = cctx.String("listen")
		}
		if cctx.IsSet("node-id") {
			cfg.Node.ID = cctx.String("node-id")
		}
		if cfg.Node.ID == "" {
			cfg.Node.ID = uuid.New().String()
			log.Warnw("no node id configured, using a random one", "node", cfg.Node.ID)
		}

		ctx, _ := tag.New(cctx.Context,
			tag.Insert(metrics.Version, build.BuildVersion),
			tag.Insert(metrics.Commit, build.CurrentCommit),
			tag.Insert(metrics.NodeType, "taskcoord"),
			tag.Insert(metrics.NodeID, cfg.Node.ID),
		)
		// datastore measurements go through go-metrics-interface
		if err := metricsprom.Inject(); err != nil {
			log.Warnf("unable to inject prometheus datastore metrics: %s", err)
		}
		if err := view.Register(metrics.DefaultViews...); err != nil {
			return xerrors.Errorf("registering metric views: %w", err)
		}
		stats.Record(ctx, metrics.TaskCoordInfo.M(1))

		app := fx.New(
			fx.NopLogger,
			nodeOptions(cfg),
		)
		if err := app.Err(); err != nil {
			return xerrors.Errorf("building node: %w", err)
		}

		if err := app.Start(ctx); err != nil {
			return xerrors.Errorf("starting node: %w", err)
		}
		log.Infow("task coordination node started", "node", cfg.Node.ID, "listen", cfg.Node.ListenAddress, "coordination", cfg.Coordination.Enabled)

		sig := <-app.Done()
		log.Warnw("shutting down", "signal", sig)

		stopCtx, cancel := context.WithTimeout(context.Background(), cctx.Duration("stop-timeout"))
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			return xerrors.Errorf("graceful shutdown: %w", err)
		}
		log.Warn("graceful shutdown successful")
		return nil
	},
}

// nodeOptions is the dependency graph of a node. Hooks start in the order
// their constructors ran and stop in reverse, so the api goes down first and
// the database last.
func nodeOptions(cfg *config.TaskCoord) fx.Option {
	return fx.Options(
		fx.Supply(cfg, NodeID(cfg.Node.ID)),
		fx.Provide(
			openDB,
			openTaskStore,
			openDatastore,
			localsched.NewRepository,
			newScheduler,
			newOrchestrator,
			newMembership,
			newResolver,
			newDriver,
		),
		fx.Invoke(
			deployTasks,
			startReconcile,
			serveAPI,
		),
	)
}

func openDB(lc fx.Lifecycle, cfg *config.TaskCoord) (*harmonydb.DB, error) {
	db, err := harmonydb.NewFromConfig(cfg.HarmonyDB)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return db.Close()
		},
	})
	return db, nil
}

func openTaskStore(db *harmonydb.DB) (taskstore.TaskStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return taskstore.NewRDBMSStore(ctx, db)
}

func openDatastore(lc fx.Lifecycle, cfg *config.TaskCoord) (datastore.Batching, error) {
	dir := filepath.Join(cfg.Node.DataDir, "localsched")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, xerrors.Errorf("creating data dir: %w", err)
	}
	ds, err := levelds.NewDatastore(dir, &levelds.Options{
		Compression: ldbopts.NoCompression,
		Strict:      ldbopts.StrictAll,
	})
	if err != nil {
		return nil, xerrors.Errorf("opening local task repository %s: %w", dir, err)
	}
	// Keep statistics about the datastore
	mds := measure.New("localsched.", ds)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return mds.Close()
		},
	})
	return mds, nil
}

func newScheduler(lc fx.Lifecycle, repo *localsched.Repository) *localsched.Scheduler {
	sched := localsched.New(localsched.DefaultRegistry(), repo, build.Clock)
	lc.Append(fx.Hook{
		OnStop: sched.Stop,
	})
	return sched
}

func newOrchestrator(id NodeID, store taskstore.TaskStore, sched *localsched.Scheduler, cfg *config.TaskCoord) *taskorch.Orchestrator {
	return taskorch.New(string(id), store, sched, sched.Repository(), cfg)
}

func newMembership(lc fx.Lifecycle, id NodeID, cfg *config.TaskCoord, db *harmonydb.DB) (reconcile.Membership, error) {
	c := cfg.Coordination
	if c.Membership != "db" {
		return reconcile.NewStaticMembership(string(id), c.Leader, c.Members), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	m, err := reconcile.RegisterMachine(ctx, db, build.Clock, string(id), cfg.Node.ListenAddress,
		time.Duration(c.HeartbeatInterval), time.Duration(c.LooksDeadTimeout))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: m.Shutdown,
	})
	return m, nil
}

func newResolver(cfg *config.TaskCoord) (reconcile.Resolver, error) {
	return reconcile.NewResolver(cfg.Coordination.Resolver)
}

func newDriver(store taskstore.TaskStore, orch *taskorch.Orchestrator, members reconcile.Membership, resolver reconcile.Resolver, cfg *config.TaskCoord) (*reconcile.Driver, error) {
	return reconcile.NewDriver(store, orch, members, resolver, build.Clock, reconcile.Options{
		Interval:      time.Duration(cfg.Coordination.ResolveInterval),
		CleanEvery:    cfg.Coordination.CleanEvery,
		ReleaseOnStop: cfg.Coordination.ReleaseOnShutdown,
	})
}

// deployTasks registers and deploys the configured task definitions this
// node may run. A store outage only delays coordinated tasks: they sit in
// the orchestrator's retry list until the store is back.
func deployTasks(lc fx.Lifecycle, id NodeID, cfg *config.TaskCoord, orch *taskorch.Orchestrator, repo *localsched.Repository) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var errs error
			for _, def := range cfg.Tasks {
				if len(def.PinnedServers) > 0 && !lo.Contains(def.PinnedServers, string(id)) {
					log.Infow("task is pinned to other nodes, skipping", "task", def.Name, "pinned", def.PinnedServers)
					continue
				}
				errs = multierr.Append(errs, deployTask(ctx, orch, repo, def))
			}
			return errs
		},
	})
}

func deployTask(ctx context.Context, orch *taskorch.Orchestrator, repo *localsched.Repository, def config.TaskDefinition) error {
	info := localsched.TaskInfo{
		Name:          def.Name,
		Kind:          def.Kind,
		Interval:      time.Duration(def.Interval),
		Count:         def.Count,
		Properties:    def.Properties,
		PinnedServers: def.PinnedServers,
	}
	if err := orch.RegisterTask(ctx, info); err != nil {
		return xerrors.Errorf("registering task %s: %w", def.Name, err)
	}
	if def.Paused && !orch.IsCoordinated(def.Name) {
		if err := repo.SetPaused(ctx, def.Name, true); err != nil {
			return xerrors.Errorf("flagging task %s paused: %w", def.Name, err)
		}
	}

	err := orch.HandleTask(ctx, def.Name)
	if err == nil {
		log.Infow("deployed task", "task", def.Name, "kind", def.Kind, "coordinated", orch.IsCoordinated(def.Name))
		return nil
	}
	switch taskorch.CodeOf(err) {
	case taskorch.CodeDatabaseError:
		log.Warnw("task store unavailable, task deployment will be retried", "task", def.Name, "error", err)
		return nil
	default:
		return err
	}
}

func startReconcile(lc fx.Lifecycle, cfg *config.TaskCoord, d *reconcile.Driver) {
	if !cfg.Coordination.Enabled {
		log.Infow("cluster coordination disabled, every task runs locally")
		return
	}
	lc.Append(fx.Hook{
		OnStart: d.Start,
		OnStop:  d.Stop,
	})
}

func serveAPI(lc fx.Lifecycle, cfg *config.TaskCoord, orch *taskorch.Orchestrator, repo *localsched.Repository) {
	srv := &http.Server{
		Handler:           newAPIHandler(orch, repo),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			nl, err := net.Listen("tcp", cfg.Node.ListenAddress)
			if err != nil {
				return xerrors.Errorf("listening on %s: %w", cfg.Node.ListenAddress, err)
			}
			log.Infof("admin api listening on http://%s", nl.Addr())
			go func() {
				if err := srv.Serve(nl); err != nil && err != http.ErrServerClosed {
					log.Errorw("admin api stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})
}
