package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/carp/internal/wire"
)

// MigrateResult is the JSON payload of the migrate command.
type MigrateResult struct {
	Operation string          `json:"operation"`
	Declared  string          `json:"declared"`
	Current   string          `json:"current"`
	Request   json.RawMessage `json:"request"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <service> <request.json|->",
		Short: "Migrate a request document to the current API version",
		Long: `Read one request document, check it against the wire schema of the
version it declares and print it migrated to the version the service speaks.
Use "-" to read from stdin.

Exit codes:
  0 - Request migrated
  1 - Request rejected (unknown operation, newer version, schema violation)
  2 - Command error (unreadable input, etc.)

Examples:
  carp migrate DataStreamService get.json
  cat add.json | carp migrate ProtocolService - --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, cmd, args[0], args[1])
		},
	}
}

func runMigrate(opts *RootOptions, cmd *cobra.Command, service, path string) error {
	out := opts.formatter(cmd)

	data, err := readInput(cmd, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read request", err)
	}
	obj, err := wire.ParseObject(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "request is not a JSON object", err)
	}

	m, err := opts.Catalog.MigrateRequest(service, obj)
	if err != nil {
		if ferr := out.Fault(err); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "request rejected", err)
	}

	canonical, err := wire.Marshal(m.Request)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to marshal request", err)
	}
	out.VerboseLog("%s: %s -> %s", m.Operation, m.Declared, m.Current)

	result := MigrateResult{
		Operation: m.Operation,
		Declared:  m.Declared.String(),
		Current:   m.Current.String(),
		Request:   canonical,
	}
	return out.Result("ok", result, nil, func(w io.Writer) {
		fmt.Fprintln(w, indent(canonical))
	})
}

// readInput reads a file, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// indent pretty-prints canonical JSON. Key order is preserved.
func indent(canonical []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, canonical, "", "  "); err != nil {
		return string(canonical)
	}
	return buf.String()
}
