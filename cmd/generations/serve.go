package main

import (
	"context"
	"errors"
	"flag"
	"io"

	"github.com/skosovsky/generations/fileregistry"
	"github.com/skosovsky/generations/internal/server"
)

const serveUsage = `Usage:
  generations serve [--config <path>] [--addr <host:port>]

Flags:
  --config string   Path to YAML configuration file
  --addr   string   Override the listen address from configuration`

func serve(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var cfgPath, addr string
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.StringVar(&addr, "addr", "", "override listen address")
	if err := parseFlags(fs, args, serveUsage, stderr); err != nil {
		if errors.Is(err, errHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err := cfg.Log.Logger(stderr)
	if err != nil {
		return err
	}
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	opts := []server.Option{server.WithLogger(logger)}
	if cfg.Templates.Dir != "" {
		opts = append(opts, server.WithTemplates(fileregistry.NewDir(cfg.Templates.Dir)))
	}
	srv, err := server.New(cfg.Server, client, opts...)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
