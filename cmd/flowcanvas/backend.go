package main

import (
	"context"
	"flag"
	"os"

	"github.com/rendis/flowcanvas/internal/devserver"
)

func runServe(ctx context.Context, cfg Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	bindFlags(fs, &cfg)
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "TCP listen address")
	if err := fs.Parse(args); err != nil {
		return usageError{msg: err.Error()}
	}

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	validator, err := newValidator(cfg)
	if err != nil {
		return err
	}

	srv := devserver.New(devserver.Deps{Store: st, Validator: validator, Logger: logger})
	return srv.ListenAndServe(ctx, cfg.ListenAddr)
}
