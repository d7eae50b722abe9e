package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/taskcoord/lib/harmony/harmonydb"
	"github.com/filecoin-project/taskcoord/lib/harmony/taskstore"
	"github.com/filecoin-project/taskcoord/node/config"
)

var tasksCmd = &cli.Command{
	Name:  "tasks",
	Usage: "Inspect and edit the shared task table",
	Subcommands: []*cli.Command{
		tasksListCmd,
		tasksStateCmd,
		tasksAssignCmd,
		tasksDeactivateCmd,
		tasksActivateCmd,
		tasksReleaseNodeCmd,
		tasksDeleteCmd,
		tasksPurgeNodeCmd,
		tasksInitDBCmd,
	},
}

// makeStore opens the task store described by the config file. The
// returned closer releases the database pool.
func makeStore(cctx *cli.Context) (*taskstore.RDBMSStore, func(), error) {
	cfg, err := config.FromFile(cctx.String(FlagConfig), config.DefaultTaskCoord())
	if err != nil {
		return nil, nil, xerrors.Errorf("loading config: %w", err)
	}
	db, err := harmonydb.NewFromConfig(cfg.HarmonyDB)
	if err != nil {
		return nil, nil, err
	}
	store, err := taskstore.NewRDBMSStore(cctx.Context, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, func() { _ = db.Close() }, nil
}

var tasksListCmd = &cli.Command{
	Name:  "list",
	Usage: "List coordinated tasks",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "node",
			Usage: "only list tasks owned by this node",
		},
		&cli.StringFlag{
			Name:  "state",
			Usage: "only list tasks in this state, requires --node",
		},
		&cli.BoolFlag{
			Name:  "unassigned",
			Usage: "only list incomplete tasks nobody owns",
		},
	},
	Action: func(cctx *cli.Context) error {
		store, closer, err := makeStore(cctx)
		if err != nil {
			return err
		}
		defer closer()
		ctx := cctx.Context

		if cctx.Bool("unassigned") {
			names, err := store.ListUnassignedIncomplete(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		}

		if cctx.IsSet("state") {
			if !cctx.IsSet("node") {
				return xerrors.Errorf("--state requires --node")
			}
			st, err := taskstore.ParseState(cctx.String("state"))
			if err != nil {
				return err
			}
			names, err := store.ListByOwnerAndState(ctx, cctx.String("node"), st)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		}

		tasks, err := store.ListAll(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		_, _ = fmt.Fprintf(tw, "Name\tOwner\tState\n")
		for _, t := range tasks {
			if cctx.IsSet("node") && t.OwnerNodeID != cctx.String("node") {
				continue
			}
			owner := t.OwnerNodeID
			if !t.Assigned() {
				owner = "-"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, owner, stateColor(t.State).Sprint(t.State))
		}
		return tw.Flush()
	},
}

func stateColor(st taskstore.State) *color.Color {
	switch st {
	case taskstore.StateRunning:
		return color.New(color.FgGreen)
	case taskstore.StateDeactivated, taskstore.StatePaused:
		return color.New(color.FgYellow)
	case taskstore.StateActivated:
		return color.New(color.FgCyan)
	case taskstore.StateCompleted:
		return color.New(color.FgHiBlack)
	default:
		return color.New(color.Reset)
	}
}

var tasksStateCmd = &cli.Command{
	Name:      "state",
	Usage:     "Print the state of a task",
	ArgsUsage: "<name>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.Errorf("expected one task name")
		}
		store, closer, err := makeStore(cctx)
		if err != nil {
			return err
		}
		defer closer()

		st, err := store.GetState(cctx.Context, cctx.Args().First())
		if err != nil {
			return err
		}
		fmt.Println(st)
		return nil
	},
}

var tasksAssignCmd = &cli.Command{
	Name:      "assign",
	Usage:     "Hand a task to a node. A running task is reset so the new owner starts it",
	ArgsUsage: "<name> <node>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 2 {
			return xerrors.Errorf("expected a task name and a node id")
		}
		store, closer, err := makeStore(cctx)
		if err != nil {
			return err
		}
		defer closer()

		return store.AssignAndDemote(cctx.Context, map[string]string{
			cctx.Args().Get(0): cctx.Args().Get(1),
		})
	},
}

var tasksDeactivateCmd = &cli.Command{
	Name:      "deactivate",
	Usage:     "Ask the owner of a task to pause it",
	ArgsUsage: "<name>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.Errorf("expected one task name")
		}
		store, closer, err := makeStore(cctx)
		if err != nil {
			return err
		}
		defer closer()
		return store.Deactivate(cctx.Context, cctx.Args().First())
	},
}

var tasksActivateCmd = &cli.Command{
	Name:      "activate",
	Usage:     "Ask the owner of a paused task to resume it",
	ArgsUsage: "<name>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.Errorf("expected one task name")
		}
		store, closer, err := makeStore(cctx)
		if err != nil {
			return err
		}
		defer closer()
		return store.Activate(cctx.Context, cctx.Args().First())
	},
}

var tasksReleaseNodeCmd = &cli.Command{
	Name:      "release-node",
	Usage:     "Return every incomplete task of a node to the unassigned pool",
	ArgsUsage: "<node>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.Errorf("expected one node id")
		}
		store, closer, err := makeStore(cctx)
		if err != nil {
			return err
		}
		defer closer()
		return store.ReleaseByNode(cctx.Context, cctx.Args().First())
	},
}

var tasksDeleteCmd = &cli.Command{
	Name:      "delete",
	Usage:     "Delete tasks from the shared table",
	ArgsUsage: "<name>...",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() == 0 {
			return xerrors.Errorf("expected at least one task name")
		}
		store, closer, err := makeStore(cctx)
		if err != nil {
			return err
		}
		defer closer()
		return store.DeleteByNames(cctx.Context, cctx.Args().Slice())
	},
}

var tasksPurgeNodeCmd = &cli.Command{
	Name:      "purge-node",
	Usage:     "Delete the tasks a node owns, except completed and pending activation changes",
	ArgsUsage: "<node>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.Errorf("expected one node id")
		}
		store, closer, err := makeStore(cctx)
		if err != nil {
			return err
		}
		defer closer()
		return store.DeleteByNode(cctx.Context, cctx.Args().First())
	},
}

var tasksInitDBCmd = &cli.Command{
	Name:  "init-db",
	Usage: "Create the task table if it does not exist",
	Action: func(cctx *cli.Context) error {
		_, closer, err := makeStore(cctx)
		if err != nil {
			return err
		}
		closer()
		fmt.Println("task table ready")
		return nil
	},
}
