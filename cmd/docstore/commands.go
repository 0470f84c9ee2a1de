package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/scott-cotton/cli"

	"github.com/guyvdb/docstore/config"
)

type MainConfig struct {
	ConfigFile string `cli:"name=config desc='configuration file (yaml)'"`
	V          bool   `cli:"name=v desc='info logging'"`
	VV         bool   `cli:"name=vv desc='debug logging'"`

	Main *cli.Command
}

// load returns the file configuration, or the defaults, with the verbosity
// flags applied.
func (cfg *MainConfig) load() (*config.Config, error) {
	c := config.DefaultConfig()
	if cfg.ConfigFile != "" {
		var err error
		if c, err = config.LoadConfig(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	switch {
	case cfg.VV:
		c.Log.Level = "debug"
	case cfg.V:
		c.Log.Level = "info"
	}
	return c, nil
}

func MainCommand() *cli.Command {
	cfg := &MainConfig{}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}

	return cli.NewCommandAt(&cfg.Main, "docstore").
		WithSynopsis("docstore [opts] command [opts]").
		WithDescription("docstore is a networked document store.").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return docstoreMain(cfg, cc, args)
		}).
		WithSubs(
			ServeCommand(cfg),
			InsertCommand(cfg),
			SearchCommand(cfg),
			RemoveCommand(cfg),
			CountCommand(cfg),
			ReadAllCommand(cfg),
			LockCommand(cfg))
}

func docstoreMain(cfg *MainConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Main.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return cli.ErrNoCommandProvided
	}
	sub := cfg.Main.FindSub(cc, args[0])
	if sub == nil {
		return fmt.Errorf("%w: %q not found", cli.ErrNoSuchCommand, args[0])
	}
	err = sub.Run(cc, args[1:])
	if errors.Is(err, cli.ErrUsage) {
		sub.Usage(cc, err)
		os.Exit(sub.Exit(cc, err))
	}
	return err
}
