package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/carp/internal/catalog"
	"github.com/roach88/carp/internal/envelope"
	"github.com/roach88/carp/internal/replay"
	"github.com/roach88/carp/internal/store"
	"github.com/roach88/carp/internal/wire"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Database string
}

// InvokeResult is the outcome of one request.
type InvokeResult struct {
	Operation string          `json:"operation"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     *CLIError       `json:"error,omitempty"`
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <service> <requests.json|->",
		Short: "Run requests against a fresh in-memory service",
		Long: `Run one request document, or a JSON array of them, in order against a
fresh in-memory reference service. Requests may declare any API version the
service accepts; each response is shaped for the version its request
declared.

With --db every logged request is appended to the SQLite request log, from
which "carp log" lists and "carp replay" verifies them.

Exit codes:
  0 - Every request succeeded
  1 - At least one request failed
  2 - Command error (unreadable input, database error, etc.)

Examples:
  carp invoke DataStreamService requests.json
  carp invoke ProtocolService add.json --db carp.db --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "append logged requests to this SQLite database (default from config)")

	return cmd
}

func runInvoke(opts *InvokeOptions, cmd *cobra.Command, service, path string) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	data, err := readInput(cmd, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read requests", err)
	}
	requests, err := splitRequests(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid requests", err)
	}

	cfg := catalog.SessionConfig{}
	if db := databasePath(opts.RootOptions, opts.Database); db != "" {
		st, err := store.Open(db, store.WithDiscriminatorField(opts.Config.DiscriminatorField))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		cfg.Sink = st
		out.VerboseLog("logging to %s", db)
	}

	session := opts.Catalog.NewSession(cfg)
	defer session.Close()

	field := opts.Config.DiscriminatorField
	results := make([]InvokeResult, 0, len(requests))
	failed := 0
	for _, req := range requests {
		body, err := wire.Marshal(req)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to marshal request", err)
		}
		operation, _ := req.String(field)

		resp, err := session.Handle(ctx, service, body)
		result := InvokeResult{Operation: operation}
		if err != nil {
			failed++
			failure, _ := envelope.ParseFailure(resp)
			result.Error = &CLIError{Code: string(failure.Type), Message: failure.Message}
		} else {
			result.Response = resp
		}
		results = append(results, result)
	}

	status, cliErr := "ok", (*CLIError)(nil)
	if failed > 0 {
		status = "error"
		cliErr = &CLIError{Code: "E_REQUEST_FAILED", Message: fmt.Sprintf("%d of %d request(s) failed", failed, len(results))}
	}
	err = out.Result(status, results, cliErr, func(w io.Writer) {
		for _, r := range results {
			if r.Error != nil {
				fmt.Fprintf(w, "✗ %s\n  %s: %s\n", replay.ShortName(r.Operation), r.Error.Code, r.Error.Message)
				continue
			}
			fmt.Fprintf(w, "✓ %s\n  %s\n", replay.ShortName(r.Operation), r.Response)
		}
	})
	if err != nil {
		return err
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d request(s) failed", failed))
	}
	return nil
}

// splitRequests accepts one request object or an array of them.
func splitRequests(data []byte) ([]wire.Object, error) {
	v, err := wire.Parse(data)
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case wire.Object:
		return []wire.Object{v}, nil
	case wire.Array:
		requests := make([]wire.Object, len(v))
		for i, elem := range v {
			obj, ok := elem.(wire.Object)
			if !ok {
				return nil, fmt.Errorf("[%d]: expected object, got %s", i, wire.KindOf(elem))
			}
			requests[i] = obj
		}
		return requests, nil
	default:
		return nil, fmt.Errorf("expected object or array, got %s", wire.KindOf(v))
	}
}

// databasePath returns the --db flag, or the configured store path.
func databasePath(opts *RootOptions, flag string) string {
	if flag != "" {
		return flag
	}
	return opts.Config.Store.Path
}

// openExisting opens a request log that must already exist.
func openExisting(opts *RootOptions, flag string) (*store.Store, error) {
	path := databasePath(opts, flag)
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no database: pass --db or set store.path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path, store.WithDiscriminatorField(opts.Config.DiscriminatorField))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
