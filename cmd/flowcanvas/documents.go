package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rendis/flowcanvas/internal/designer"
	"github.com/rendis/flowcanvas/internal/diagram"
	"github.com/rendis/flowcanvas/internal/expressions"
	"github.com/rendis/flowcanvas/pkg/schema"
)

func runExport(ctx context.Context, cfg Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	bindFlags(fs, &cfg)
	format := fs.String("format", "mermaid", "output format: mermaid, ascii, dot, png or canvas")
	out := fs.String("o", "", "output file (default: stdout)")
	file := fs.String("file", "", "read a wire document from a file, - for stdin")
	revision := fs.String("revision", "", "revision to export (default: the active one)")
	scale := fs.Float64("scale", 1, "pixels per logical unit for canvas output")
	if err := fs.Parse(args); err != nil {
		return usageError{msg: err.Error()}
	}
	if *file == "" && fs.NArg() != 1 {
		return usagef("usage: flowcanvas export [flags] <workflow_type>")
	}

	var def *schema.WorkflowDefinition
	if *file != "" {
		d, _, err := readDefinition(*file, os.Stdin)
		if err != nil {
			return err
		}
		def = d
	} else {
		d, err := fetchDefinition(ctx, cfg, fs.Arg(0), *revision)
		if err != nil {
			return err
		}
		def = d
	}

	data, err := renderDefinition(ctx, def, *format, *scale)
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = stdout.Write(data)
		return err
	}
	return os.WriteFile(*out, data, 0o644)
}

func fetchDefinition(ctx context.Context, cfg Config, workflowType, revision string) (*schema.WorkflowDefinition, error) {
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return nil, err
	}
	c, err := newClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	defs, err := c.FetchRevisions(ctx, workflowType)
	if err != nil {
		return nil, err
	}
	def := designer.PickRevision(defs, revision)
	if def == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no revision %q of %q", revision, workflowType)
	}
	return def, nil
}

func renderDefinition(ctx context.Context, def *schema.WorkflowDefinition, format string, scale float64) ([]byte, error) {
	model := diagram.FromDefinition(def)
	switch format {
	case "mermaid":
		return []byte(diagram.RenderMermaid(model)), nil
	case "ascii":
		return []byte(diagram.RenderASCII(model)), nil
	case "dot":
		return diagram.RenderDOT(ctx, model)
	case "png":
		return diagram.RenderImage(ctx, model)
	case "canvas":
		return diagram.RenderCanvasPNG(model, diagram.CanvasOptions{Scale: scale})
	default:
		return nil, usagef("unknown format %q", format)
	}
}

func runValidate(ctx context.Context, cfg Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print results as JSON")
	if err := fs.Parse(args); err != nil {
		return usageError{msg: err.Error()}
	}
	if fs.NArg() == 0 {
		return usagef("usage: flowcanvas validate [-json] <file|-> ...")
	}

	v, err := newValidator(cfg)
	if err != nil {
		return err
	}

	invalid := false
	for _, path := range fs.Args() {
		raw, err := readInput(path, os.Stdin)
		if err != nil {
			return err
		}
		result := v.ValidateJSON(ctx, raw)
		if !result.Valid() {
			invalid = true
		}
		if *asJSON {
			if err := writeJSON(stdout, map[string]any{"file": path, "result": result}); err != nil {
				return err
			}
			continue
		}
		printResult(stdout, path, result)
	}
	if invalid {
		return errInvalid
	}
	return nil
}

func printResult(w io.Writer, path string, r *schema.ValidationResult) {
	if r.Valid() && len(r.Warnings) == 0 {
		fmt.Fprintf(w, "%s: ok\n", path)
		return
	}
	status := "ok"
	if !r.Valid() {
		status = "invalid"
	}
	fmt.Fprintf(w, "%s: %s\n", path, status)
	for _, is := range r.Errors {
		fmt.Fprintf(w, "  error   %s %s: %s\n", is.Code, is.Path, is.Message)
	}
	for _, is := range r.Warnings {
		fmt.Fprintf(w, "  warning %s %s: %s\n", is.Code, is.Path, is.Message)
	}
}

func runQuery(ctx context.Context, _ Config, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	rawOut := fs.Bool("r", false, "print string results without quotes")
	if err := fs.Parse(args); err != nil {
		return usageError{msg: err.Error()}
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return usagef("usage: flowcanvas query [-r] <expression> [file|-]")
	}
	path := "-"
	if fs.NArg() == 2 {
		path = fs.Arg(1)
	}

	raw, err := readInput(path, stdin)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return schema.NewErrorf(schema.ErrCodeDecode, "decode %s", path).WithCause(err)
	}

	results, err := expressions.NewGoJQEngine().Query(ctx, fs.Arg(0), doc)
	if err != nil {
		return err
	}
	for _, r := range results {
		if s, ok := r.(string); ok && *rawOut {
			fmt.Fprintln(stdout, s)
			continue
		}
		b, err := json.Marshal(r)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(b))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// trimNewline keeps single-line output tidy in tables.
func trimNewline(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}
