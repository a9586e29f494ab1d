package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/carp/internal/replay"
	"github.com/roach88/carp/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database  string
	Service   string
	Operation string
	After     int64
	Limit     int
	Full      bool
}

// LogRecord is one stored request in command output.
type LogRecord struct {
	Seq         int64           `json:"seq"`
	ID          string          `json:"id"`
	Service     string          `json:"service"`
	Operation   string          `json:"operation"`
	Exception   string          `json:"exception,omitempty"`
	RequestHash string          `json:"request_hash"`
	Entry       json.RawMessage `json:"entry,omitempty"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List logged requests",
		Long: `List the requests stored in a request log database, in log order.

Operations may be given by their short name ("GetDataStream") when
--service is set.

Examples:
  carp log --db carp.db
  carp log --db carp.db --service DataStreamService --operation GetDataStream
  carp log --db carp.db --after 20 --limit 10 --full --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Service, "service", "", "only this service")
	cmd.Flags().StringVar(&opts.Operation, "operation", "", "only this operation")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only entries after this sequence number")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "at most this many entries (0 = all)")
	cmd.Flags().BoolVar(&opts.Full, "full", false, "include full entries")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openExisting(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	operation, err := resolveOperation(opts.RootOptions, opts.Service, opts.Operation)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --operation", err)
	}

	records, err := st.List(ctx, store.Filter{
		Service:   opts.Service,
		Operation: operation,
		AfterSeq:  opts.After,
		Limit:     opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list entries", err)
	}

	out := make([]LogRecord, 0, len(records))
	for _, r := range records {
		lr := LogRecord{
			Seq:         r.Seq,
			ID:          r.Entry.ID,
			Service:     r.Entry.Service,
			Operation:   r.Entry.Operation,
			Exception:   string(r.Entry.Exception),
			RequestHash: r.RequestHash,
		}
		if opts.Full {
			if lr.Entry, err = r.Entry.Marshal(); err != nil {
				return WrapExitError(ExitCommandError, "failed to marshal entry", err)
			}
		}
		out = append(out, lr)
	}

	return opts.formatter(cmd).Result("ok", out, nil, func(w io.Writer) {
		if len(out) == 0 {
			fmt.Fprintln(w, "No logged requests found.")
			return
		}
		for _, r := range out {
			outcome := "ok"
			if r.Exception != "" {
				outcome = r.Exception
			}
			fmt.Fprintf(w, "%6d  %-18s %-22s %s\n", r.Seq, r.Service, replay.ShortName(r.Operation), outcome)
			if opts.Full {
				fmt.Fprintf(w, "        %s\n", r.Entry)
			}
		}
	})
}

// resolveOperation expands a short operation name using the operations of
// service. Full discriminators pass through.
func resolveOperation(opts *RootOptions, service, operation string) (string, error) {
	if operation == "" || strings.Contains(operation, ".") {
		return operation, nil
	}
	if service == "" {
		return "", fmt.Errorf("short operation name %q needs --service", operation)
	}
	ops, err := opts.Catalog.Operations(service)
	if err != nil {
		return "", err
	}
	for _, op := range ops {
		if replay.ShortName(op) == operation {
			return op, nil
		}
	}
	return "", fmt.Errorf("%s has no operation %q", service, operation)
}
