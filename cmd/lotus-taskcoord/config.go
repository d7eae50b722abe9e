package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v2"

	"github.com/filecoin-project/taskcoord/lib/harmony/localsched"
	"github.com/filecoin-project/taskcoord/lib/harmony/reconcile"
	"github.com/filecoin-project/taskcoord/node/config"
)

var configCmd = &cli.Command{
	Name:  "config",
	Usage: "Manage node config",
	Subcommands: []*cli.Command{
		configDefaultCmd,
		configViewCmd,
		configKindsCmd,
	},
}

var configDefaultCmd = &cli.Command{
	Name:    "default",
	Aliases: []string{"defaults"},
	Usage:   "Print default node config",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "no-comment",
			Usage: "don't comment default values",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.Bool("no-comment") {
			return toml.NewEncoder(cctx.App.Writer).Encode(config.DefaultTaskCoord())
		}
		cb, err := config.ConfigComment(config.DefaultTaskCoord())
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cctx.App.Writer, string(cb))
		return err
	},
}

var configViewCmd = &cli.Command{
	Name:  "view",
	Usage: "Print the effective config, defaults and env overrides applied",
	Action: func(cctx *cli.Context) error {
		cfg, err := config.FromFile(cctx.String(FlagConfig), config.DefaultTaskCoord())
		if err != nil {
			return err
		}
		return toml.NewEncoder(cctx.App.Writer).Encode(cfg)
	},
}

var configKindsCmd = &cli.Command{
	Name:  "kinds",
	Usage: "List the task kinds and resolvers this binary knows",
	Action: func(cctx *cli.Context) error {
		_, _ = fmt.Fprintln(cctx.App.Writer, "task kinds:")
		for _, k := range localsched.DefaultRegistry().Kinds() {
			_, _ = fmt.Fprintf(cctx.App.Writer, "  %s\n", k)
		}
		_, _ = fmt.Fprintln(cctx.App.Writer, "resolvers:")
		for _, r := range reconcile.Resolvers() {
			_, _ = fmt.Fprintf(cctx.App.Writer, "  %s\n", r)
		}
		return nil
	},
}
