package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"

	"github.com/filecoin-project/taskcoord/build"
	"github.com/filecoin-project/taskcoord/lib/lotuslog"
)

var log = logging.Logger("lotus-taskcoord")

const FlagConfig = "config"

func main() {
	lotuslog.SetupLogLevels()

	local := []*cli.Command{
		runCmd,
		tasksCmd,
		configCmd,
	}

	app := &cli.App{
		Name:                 "lotus-taskcoord",
		Usage:                "Cluster-wide coordination of recurring tasks",
		Version:              build.UserVersion(),
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    FlagConfig,
				EnvVars: []string{"LOTUS_TASKCOORD_CONFIG"},
				Value:   "~/.lotus-taskcoord/config.toml",
				Usage:   "path to the node config file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOTUS_TASKCOORD_LOG_LEVEL"},
				Usage:   "set the log level of every subsystem (debug, info, warn, error)",
			},
		},
		Before: func(cctx *cli.Context) error {
			if lvl := cctx.String("log-level"); lvl != "" {
				return logging.SetLogLevel("*", lvl)
			}
			return nil
		},
		Commands: local,
	}
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		log.Errorf("%+v", err)
		os.Exit(1)
	}
}
