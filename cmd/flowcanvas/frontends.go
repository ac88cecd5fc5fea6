package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/rendis/flowcanvas/internal/designer"
	"github.com/rendis/flowcanvas/internal/diagram"
	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/gesture"
	"github.com/rendis/flowcanvas/internal/scheduler"
	"github.com/rendis/flowcanvas/internal/tui"
	"github.com/rendis/flowcanvas/pkg/mcp"
)

func runEdit(ctx context.Context, cfg Config, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	bindFlags(fs, &cfg)
	file := fs.String("file", "", "open a wire document from a file instead of the backend")
	draft := fs.String("draft", "", "restore a stored draft")
	revision := fs.String("revision", "", "revision to open (default: the active one)")
	if err := fs.Parse(args); err != nil {
		return usageError{msg: err.Error()}
	}
	if *file == "" && *draft == "" && fs.NArg() != 1 {
		return usagef("usage: flowcanvas edit [flags] <workflow_type>")
	}

	logFile, err := openLogFile()
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger, err := newLogger(cfg, logFile)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	deps, err := sessionDeps(cfg, logger)
	if err != nil {
		return err
	}
	deps.Drafts = st
	deps.Surface = geometry.FixedSurface{}
	sess := designer.New(deps)

	switch {
	case *file != "":
		def, _, err := readDefinition(*file, os.Stdin)
		if err != nil {
			return err
		}
		sess.LoadDefinition(ctx, def)
	case *draft != "":
		if _, err := sess.RestoreDraft(ctx, *draft); err != nil {
			return err
		}
	default:
		if _, err := sess.Load(ctx, fs.Arg(0), *revision); err != nil {
			return err
		}
	}

	autosaver, err := scheduler.NewAutosaver(scheduler.Options{Cron: cfg.AutosaveCron, Logger: logger})
	if err != nil {
		return usagef("%v", err)
	}
	autosaver.Register(sess)
	if err := autosaver.Start(ctx); err != nil {
		return err
	}
	defer autosaver.Stop()

	return tui.Run(ctx, sess)
}

func runMCP(ctx context.Context, cfg Config, args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	bindFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return usageError{msg: err.Error()}
	}

	// stdout carries the protocol.
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	deps, err := sessionDeps(cfg, logger)
	if err != nil {
		return err
	}

	autosaver, err := scheduler.NewAutosaver(scheduler.Options{Cron: cfg.AutosaveCron, Logger: logger})
	if err != nil {
		return usagef("%v", err)
	}
	if err := autosaver.Start(ctx); err != nil {
		return err
	}
	defer autosaver.Stop()

	srv := mcp.NewDesignerServer(mcp.DesignerServerDeps{
		Backend:   deps.Backend,
		Drafts:    st,
		Validator: deps.Validator,
		Sizer:     deps.Sizer,
		HitRadius: deps.HitRadius,
		Policy:    deps.Policy,
		Logger:    logger,
		OnOpen: func(s *designer.Session) {
			autosaver.Register(s)
		},
	})
	logger.Info("mcp server ready", "api", cfg.APIBaseURL, "db", cfg.DBPath)
	return srv.Serve(ctx)
}

// sessionDeps builds the parts of designer.Deps shared by every front end.
func sessionDeps(cfg Config, logger *slog.Logger) (designer.Deps, error) {
	policy, err := gesture.ParsePolicy(cfg.TargetPolicy)
	if err != nil {
		return designer.Deps{}, usagef("%v", err)
	}
	validator, err := newValidator(cfg)
	if err != nil {
		return designer.Deps{}, err
	}
	backend, err := newClient(cfg, logger)
	if err != nil {
		return designer.Deps{}, err
	}
	return designer.Deps{
		Backend:   backend,
		Validator: validator,
		Sizer:     diagram.DefaultSize,
		HitRadius: cfg.HitRadius,
		Policy:    policy,
		Logger:    logger,
	}, nil
}
