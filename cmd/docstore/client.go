package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	gojson "github.com/goccy/go-json"
	"github.com/scott-cotton/cli"

	"github.com/guyvdb/docstore/client"
	"github.com/guyvdb/docstore/store"
)

// ClientConfig carries the options shared by the client commands.
type ClientConfig struct {
	*MainConfig
	Addr string `cli:"name=addr desc='broker address (default 127.0.0.1:5559)'"`
	DB   string `cli:"name=db desc='collection name (default db)'"`

	Command *cli.Command
}

func newClientConfig(mainCfg *MainConfig) *ClientConfig {
	return &ClientConfig{MainConfig: mainCfg, Addr: defaultAddr, DB: defaultDB}
}

const (
	defaultAddr = "127.0.0.1:5559"
	defaultDB   = "db"
)

func dial(mainCfg *MainConfig, addr, db string) (*client.Client, error) {
	c, err := mainCfg.load()
	if err != nil {
		return nil, err
	}
	log, err := newQuietLogger(c.Log.Level)
	if err != nil {
		return nil, err
	}
	return client.Dial(addr, db, &client.Options{Log: log})
}

func (cfg *ClientConfig) dial() (*client.Client, error) {
	return dial(cfg.MainConfig, cfg.Addr, cfg.DB)
}

var (
	idColor    = color.New(color.FgGreen, color.Bold)
	fieldColor = color.New(color.FgCyan)
	noteColor  = color.New(color.FgYellow)
)

func printIds(w io.Writer, verb string, ids []store.Id) {
	noteColor.Fprintf(w, "%s %s: ", verb, humanize.Comma(int64(len(ids))))
	for i, id := range ids {
		if i > 0 {
			fmt.Fprint(w, " ")
		}
		idColor.Fprint(w, id.String())
	}
	fmt.Fprintln(w)
}

func printDocuments(w io.Writer, docs []store.Document) error {
	for _, doc := range docs {
		data, err := gojson.Marshal(doc.Fields)
		if err != nil {
			return err
		}
		idColor.Fprintf(w, "%6s ", doc.Id.String())
		fieldColor.Fprintln(w, string(data))
	}
	noteColor.Fprintf(w, "%s documents\n", humanize.Comma(int64(len(docs))))
	return nil
}

type InsertConfig struct {
	*MainConfig
	Addr string `cli:"name=addr desc='broker address (default 127.0.0.1:5559)'"`
	DB   string `cli:"name=db desc='collection name (default db)'"`
	Many bool   `cli:"name=many desc='insert all documents in one server side cycle'"`

	Insert *cli.Command
}

func InsertCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &InsertConfig{MainConfig: mainCfg, Addr: defaultAddr, DB: defaultDB}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Insert, "insert").
		WithSynopsis("insert [-many] <json-object>...").
		WithDescription("insert documents given as JSON objects").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			args, err := cfg.Insert.Parse(cc, args)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return fmt.Errorf("%w: no documents given", cli.ErrUsage)
			}
			docs := make([]store.Fields, 0, len(args))
			for _, arg := range args {
				doc := store.Fields{}
				if err := gojson.Unmarshal([]byte(arg), &doc); err != nil {
					return fmt.Errorf("%w: %q is not a JSON object", cli.ErrUsage, arg)
				}
				docs = append(docs, doc)
			}

			c, err := dial(cfg.MainConfig, cfg.Addr, cfg.DB)
			if err != nil {
				return err
			}
			defer c.Close()

			var ids []store.Id
			if cfg.Many {
				ids, err = c.InsertMultiple(docs)
			} else {
				ids, err = c.Insert(docs...)
			}
			if err != nil {
				return err
			}
			printIds(cc.Out, "inserted", ids)
			return nil
		})
}

func SearchCommand(mainCfg *MainConfig) *cli.Command {
	cfg := newClientConfig(mainCfg)
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, "search").
		WithAliases("s").
		WithSynopsis("search <path> <op> [value] [and|or|not ...]").
		WithDescription("print the documents matching a query, e.g. search name == he or age '>' 30").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			args, err := cfg.Command.Parse(cc, args)
			if err != nil {
				return err
			}
			q, err := parseQuery(args)
			if err != nil {
				return err
			}
			c, err := cfg.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			docs, err := c.Search(q)
			if err != nil {
				return err
			}
			return printDocuments(cc.Out, docs)
		})
}

func RemoveCommand(mainCfg *MainConfig) *cli.Command {
	cfg := newClientConfig(mainCfg)
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, "remove").
		WithAliases("rm").
		WithSynopsis("remove <path> <op> [value] [and|or|not ...]").
		WithDescription("remove the documents matching a query").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			args, err := cfg.Command.Parse(cc, args)
			if err != nil {
				return err
			}
			q, err := parseQuery(args)
			if err != nil {
				return err
			}
			c, err := cfg.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			ids, err := c.Remove(q)
			if err != nil {
				return err
			}
			printIds(cc.Out, "removed", ids)
			return nil
		})
}

func CountCommand(mainCfg *MainConfig) *cli.Command {
	cfg := newClientConfig(mainCfg)
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, "count").
		WithSynopsis("count [<path> <op> [value] ...]").
		WithDescription("count the documents matching a query, or all documents").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			args, err := cfg.Command.Parse(cc, args)
			if err != nil {
				return err
			}
			c, err := cfg.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			var n int
			if len(args) == 0 {
				n, err = c.Len()
			} else {
				q, qerr := parseQuery(args)
				if qerr != nil {
					return qerr
				}
				n, err = c.Count(q)
			}
			if err != nil {
				return err
			}
			idColor.Fprintln(cc.Out, humanize.Comma(int64(n)))
			return nil
		})
}

func ReadAllCommand(mainCfg *MainConfig) *cli.Command {
	cfg := newClientConfig(mainCfg)
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, "readall").
		WithSynopsis("readall").
		WithDescription("print every collection").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			if _, err := cfg.Command.Parse(cc, args); err != nil {
				return err
			}
			c, err := cfg.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			all, err := c.ReadAll()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(all))
			for name := range all {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				noteColor.Fprintf(cc.Out, "== %s\n", name)
				if err := printDocuments(cc.Out, all[name]); err != nil {
					return err
				}
			}
			return nil
		})
}

func LockCommand(mainCfg *MainConfig) *cli.Command {
	cfg := newClientConfig(mainCfg)
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Command, "lock").
		WithSynopsis("lock <json-object>...").
		WithDescription("lock a worker, insert documents through the lock endpoint and unlock").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			args, err := cfg.Command.Parse(cc, args)
			if err != nil {
				return err
			}
			docs := make([]store.Fields, 0, len(args))
			for _, arg := range args {
				doc := store.Fields{}
				if err := gojson.Unmarshal([]byte(arg), &doc); err != nil {
					return fmt.Errorf("%w: %q is not a JSON object", cli.ErrUsage, arg)
				}
				docs = append(docs, doc)
			}

			c, err := cfg.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			uri, err := c.Lock()
			if err != nil {
				return err
			}
			noteColor.Fprintf(cc.Out, "locked, exclusive endpoint %s\n", uri)

			ids, err := c.InsertMultiple(docs)
			if uerr := c.Unlock(); uerr != nil && err == nil {
				err = uerr
			}
			if err != nil {
				return err
			}
			printIds(cc.Out, "inserted", ids)
			noteColor.Fprintln(cc.Out, "unlocked")
			return nil
		})
}
