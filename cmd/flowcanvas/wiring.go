package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rendis/flowcanvas/internal/client"
	"github.com/rendis/flowcanvas/internal/expressions"
	"github.com/rendis/flowcanvas/internal/logging"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/validation"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// errInvalid reports a document that failed validation. The findings have
// already been printed.
var errInvalid = errors.New("definition is invalid")

// usageError is a bad command line.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func exitCode(err error) int {
	var ue usageError
	if errors.As(err, &ue) {
		return 2
	}
	return 1
}

func newLogger(cfg Config, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, usagef("%v", err)
	}
	return logging.New(w, level), nil
}

// openLogFile opens the log sink for commands that own the terminal.
func openLogFile() (*os.File, error) {
	dir := flowcanvasDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	return os.OpenFile(filepath.Join(dir, "flowcanvas.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}

func openStore(ctx context.Context, cfg Config) (*store.LibSQLStore, error) {
	if !hasScheme(cfg.DBPath) {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	st, err := store.NewLibSQLStore(dsn(cfg.DBPath))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func newValidator(cfg Config) (*validation.Validator, error) {
	engines, err := expressions.NewRegistry()
	if err != nil {
		return nil, err
	}
	return validation.NewValidator(cfg.Rules, engines)
}

func newClient(cfg Config, logger *slog.Logger) (*client.Client, error) {
	return client.New(client.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.RequestTimeout,
		Retry: client.RetryPolicy{
			Attempts: cfg.RetryAttempts,
			Delay:    250 * time.Millisecond,
			MaxDelay: 2 * time.Second,
		},
		Logger: logger,
	})
}

// readDefinition decodes a wire document from path, or from stdin when
// path is "-".
func readDefinition(path string, stdin io.Reader) (*schema.WorkflowDefinition, []byte, error) {
	raw, err := readInput(path, stdin)
	if err != nil {
		return nil, nil, err
	}
	var def schema.WorkflowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, raw, schema.NewErrorf(schema.ErrCodeDecode, "decode %s", path).WithCause(err)
	}
	return &def, raw, nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}
