package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/scott-cotton/cli"
	"golang.org/x/sync/errgroup"

	"github.com/guyvdb/docstore/broker"
	"github.com/guyvdb/docstore/catalog"
	"github.com/guyvdb/docstore/config"
	"github.com/guyvdb/docstore/server"
)

type ServeConfig struct {
	*MainConfig
	Serve    *cli.Command
	Addr     string `cli:"name=addr desc='client listen address (overrides config)'"`
	ReadOnly bool   `cli:"name=read-only desc='reject mutating requests'"`
	Debug    bool   `cli:"name=debug desc='include stack traces in internal errors'"`
	Gops     bool   `cli:"name=gops desc='start the gops diagnostics agent'"`
}

func ServeCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &ServeConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Serve, "serve").
		WithSynopsis("serve [-addr <addr>] [-read-only] [-debug] [-gops]").
		WithDescription("run the broker and its session workers").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return serve(cfg, cc, args)
		})
}

func serve(cfg *ServeConfig, cc *cli.Context, args []string) error {
	_, err := cfg.Serve.Parse(cc, args)
	if err != nil {
		return err
	}

	c, err := cfg.load()
	if err != nil {
		return err
	}
	if cfg.Addr != "" {
		c.ClientAddr = cfg.Addr
	}
	c.ReadOnly = c.ReadOnly || cfg.ReadOnly
	c.Debug = c.Debug || cfg.Debug
	c.Gops = c.Gops || cfg.Gops
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", cli.ErrUsage, err)
	}

	log, err := config.NewLogger(c.Log, os.Stderr)
	if err != nil {
		return err
	}

	if c.Gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			fmt.Fprintf(cc.Out, "gops agent failed: %v\n", err)
		}
		defer agent.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opener := config.NewOpener(log)
	var catalogs []*catalog.Catalog
	var servers []*server.Server
	defer func() {
		for _, srv := range servers {
			srv.Close()
		}
		for _, cat := range catalogs {
			if err := cat.Close(); err != nil {
				log.Error("failed to close collections", "error", err)
			}
		}
	}()

	for i := range c.WorkerAddrs {
		cat, err := opener.Catalog(c)
		if err != nil {
			return err
		}
		catalogs = append(catalogs, cat)

		srv := server.New(&server.Spec{Config: c.Server(i), Catalog: cat, Log: log.With("worker", i)})
		if err := srv.Listen(); err != nil {
			return err
		}
		servers = append(servers, srv)
	}

	workers := make([]string, len(servers))
	for i, srv := range servers {
		workers[i] = srv.Addr()
	}
	b, err := broker.New(c.ClientAddr, workers, log)
	if err != nil {
		return err
	}
	fmt.Fprintf(cc.Out, "docstore listening on %s (%d workers)\n", b.Addr(), len(workers))

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error { return srv.Run(ctx) })
	}
	g.Go(b.Serve)
	g.Go(func() error {
		<-ctx.Done()
		return b.Close()
	})
	return g.Wait()
}
