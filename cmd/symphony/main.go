// Command symphony serves the demo pages on a TCP port through a thread pool
// of workers, with a matching pool of watchers post-processing every result.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluxorio/symphony/pkg/admin"
	"github.com/fluxorio/symphony/pkg/config"
	"github.com/fluxorio/symphony/pkg/core"
)

const tokenTTL = 24 * time.Hour

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatalf("symphony: %v", err)
	}
}

type flags struct {
	configPath  string
	workers     int
	addr        string
	serveLimit  int
	writeConfig string
	issueToken  string
	hashAPIKey  string
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	f := &flags{}
	fs := flag.NewFlagSet("symphony", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "path to a YAML or JSON config file")
	fs.IntVar(&f.workers, "workers", -1, "number of workers (and watchers); overrides pool.workers")
	fs.StringVar(&f.addr, "addr", "", "listen address; overrides listener.addr")
	fs.IntVar(&f.serveLimit, "serve-limit", -1, "stop after this many connections; overrides listener.serve_limit")
	fs.StringVar(&f.writeConfig, "write-config", "", "write the effective config to this path and exit")
	fs.StringVar(&f.issueToken, "issue-token", "", "print an admin JWT for this subject and exit")
	fs.StringVar(&f.hashAPIKey, "hash-api-key", "", "print the bcrypt hash of this admin API key and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return f, nil
}

// loadConfig applies flag overrides on top of file and environment config.
func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.LoadApp(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.workers >= 0 {
		cfg.Pool.Workers = f.workers
	}
	if f.addr != "" {
		cfg.Listener.Addr = f.addr
	}
	if f.serveLimit >= 0 {
		cfg.Listener.ServeLimit = f.serveLimit
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	if f.hashAPIKey != "" {
		hash, err := admin.HashAPIKey(f.hashAPIKey)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, hash)
		return nil
	}

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	switch {
	case f.writeConfig != "":
		return config.Save(f.writeConfig, cfg)
	case f.issueToken != "":
		token, err := admin.IssueToken(cfg.Admin.JWTSecret, f.issueToken, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, token)
		return nil
	}

	level, err := core.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := core.NewLogger(stderr, level)

	a, err := newApp(ctx, cfg, logger, stdout)
	if err != nil {
		return err
	}
	logger.Infof("starting %d workers and %d watchers", a.pool.Size(), a.pool.Size())
	return a.run(ctx)
}
