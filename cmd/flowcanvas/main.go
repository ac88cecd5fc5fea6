package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const usage = `flowcanvas edits workflow graph definitions.

Usage:
  flowcanvas <command> [flags] [args]

Commands:
  edit      open a definition in the terminal editor
  mcp       serve the designer tools over MCP stdio
  serve     run the development definition API
  export    render a definition as mermaid, ascii, dot, png or canvas
  validate  check definition documents
  query     run a jq expression over a definition document
  drafts    list, show or delete local drafts
  version   print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "edit":
		err = runEdit(ctx, cfg, args)
	case "mcp":
		err = runMCP(ctx, cfg, args)
	case "serve":
		err = runServe(ctx, cfg, args)
	case "export":
		err = runExport(ctx, cfg, args, os.Stdout)
	case "validate":
		err = runValidate(ctx, cfg, args, os.Stdout)
	case "query":
		err = runQuery(ctx, cfg, args, os.Stdin, os.Stdout)
	case "drafts":
		err = runDrafts(ctx, cfg, args, os.Stdout)
	case "version", "-v", "--version":
		printVersion()
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
