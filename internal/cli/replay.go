package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/carp/internal/catalog"
	"github.com/roach88/carp/internal/replay"
	"github.com/roach88/carp/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database  string
	Service   string // optional - one service only
	Normalize []string
}

// ReplayResult holds the replay result.
type ReplayResult struct {
	Entries       int            `json:"entries"`
	Replayed      int            `json:"replayed"`
	Deterministic bool           `json:"deterministic"`
	Mismatch      *ReplayDiverge `json:"mismatch,omitempty"`
}

// ReplayDiverge describes the first entry whose outcome differed.
type ReplayDiverge struct {
	Index     int    `json:"index"`
	Operation string `json:"operation"`
	Want      string `json:"want"`
	Got       string `json:"got"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a request log and verify determinism",
		Long: `Replay every logged request against fresh in-memory services and
compare each outcome (response or exception, plus published events) with the
logged one. Values under the --normalize fields are replaced by placeholders
before comparing, since they depend on the clock.

Exit codes:
  0 - Every outcome matched
  1 - An outcome differed
  2 - Command error (database not found, etc.)

Examples:
  carp replay --db carp.db
  carp replay --db carp.db --service ProtocolService
  carp replay --db carp.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Service, "service", "", "replay one service only")
	cmd.Flags().StringSliceVar(&opts.Normalize, "normalize", []string{"date"}, "fields whose values are clock dependent")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openExisting(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.Entries(ctx, store.Filter{Service: opts.Service})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read entries", err)
	}

	session := opts.Catalog.NewSession(catalog.SessionConfig{})
	defer session.Close()

	result := ReplayResult{Entries: len(entries), Deterministic: true}
	n, err := session.Verify(ctx, entries, replay.Normalizer{Fields: opts.Normalize})
	result.Replayed = n
	if err != nil {
		var mismatch *replay.MismatchError
		if !errors.As(err, &mismatch) {
			return WrapExitError(ExitCommandError, "replay failed", err)
		}
		result.Deterministic = false
		result.Mismatch = &ReplayDiverge{
			Index:     mismatch.Index,
			Operation: mismatch.Operation,
			Want:      string(mismatch.Want),
			Got:       string(mismatch.Got),
		}
	}

	status, cliErr := "ok", (*CLIError)(nil)
	if !result.Deterministic {
		status = "error"
		cliErr = &CLIError{Code: "E_DETERMINISM", Message: "determinism verification failed"}
	}
	err = opts.formatter(cmd).Result(status, result, cliErr, func(w io.Writer) {
		outputReplayText(w, result, opts.Verbose)
	})
	if err != nil {
		return err
	}
	if !result.Deterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

func outputReplayText(w io.Writer, result ReplayResult, verbose bool) {
	if result.Entries == 0 {
		fmt.Fprintln(w, "No logged requests found.")
		return
	}

	fmt.Fprintf(w, "Replay Summary: %d of %d entries\n", result.Replayed, result.Entries)
	if result.Mismatch != nil {
		m := result.Mismatch
		fmt.Fprintf(w, "✗ Entry %d (%s) diverged\n", m.Index, replay.ShortName(m.Operation))
		if verbose {
			fmt.Fprintf(w, "  want: %s\n", m.Want)
			fmt.Fprintf(w, "  got:  %s\n", m.Got)
		}
		fmt.Fprintln(w, "✗ Determinism verification failed")
		return
	}
	fmt.Fprintln(w, "✓ All entries verified deterministic")
}
