package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rendis/flowcanvas/internal/store"
)

func runDrafts(ctx context.Context, cfg Config, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return usagef("usage: flowcanvas drafts <list|show|delete> [flags]")
	}
	sub, args := args[0], args[1:]

	fs := flag.NewFlagSet("drafts "+sub, flag.ContinueOnError)
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "local database path for drafts")
	workflowType := fs.String("type", "", "only drafts of this workflow type")
	limit := fs.Int("limit", 50, "maximum drafts to list")
	if err := fs.Parse(args); err != nil {
		return usageError{msg: err.Error()}
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	switch sub {
	case "list":
		drafts, err := st.ListDrafts(ctx, store.DraftFilter{WorkflowType: *workflowType, Limit: *limit})
		if err != nil {
			return err
		}
		printDrafts(stdout, drafts)
		return nil
	case "show":
		if fs.NArg() != 1 {
			return usagef("usage: flowcanvas drafts show <key>")
		}
		d, err := st.GetDraft(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		return writeJSON(stdout, d.Document)
	case "delete":
		if fs.NArg() != 1 {
			return usagef("usage: flowcanvas drafts delete <key>")
		}
		if err := st.DeleteDraft(ctx, fs.Arg(0)); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "deleted %s\n", fs.Arg(0))
		return nil
	default:
		return usagef("unknown drafts command %q", sub)
	}
}

func printDrafts(w io.Writer, drafts []*store.Draft) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTYPE\tREASON\tUPDATED\tNAME")
	for _, d := range drafts {
		name := ""
		if d.Document != nil {
			name = trimNewline(d.Document.WorkflowName)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Key, d.WorkflowType, d.Reason, d.UpdatedAt.Local().Format(time.DateTime), name)
	}
	tw.Flush()
}
