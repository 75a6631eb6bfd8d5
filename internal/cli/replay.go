package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/store"
)

const (
	markPass = "\u2713"
	markFail = "\u2717"
)

// ReplayObjectResult holds the verification result for one object.
type ReplayObjectResult struct {
	Object     string  `json:"object"`
	Revision   int64   `json:"revision"`
	Operations int     `json:"operations"`
	Gaps       []int64 `json:"gaps,omitempty"`
	Consistent bool    `json:"consistent"`
	Error      string  `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Objects       []ReplayObjectResult `json:"objects"`
	Total         int                  `json:"total"`
	AllConsistent bool                 `json:"all_consistent"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <tenant/type/id>...",
		Short: "Replay object logs and verify them against stored state",
		Long: `Replay each object's log from the empty document and compare the
result with the stored current value.

A log with missing revisions, an operation that no longer applies, or a
replayed value that differs from the stored one fails verification.

Exit codes:
  0 - Every object replays to its stored value
  1 - Verification failed for at least one object
  2 - Command error (store unreachable, invalid object id)

Examples:
  otcore replay gym/boulder/wall-7
  otcore replay gym/boulder/wall-7 gym/account/u-1 --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, args, cmd)
		},
	}

	addStoreFlags(cmd)

	return cmd
}

func runReplay(opts *RootOptions, objects []string, cmd *cobra.Command) error {
	ids := make([]model.ObjectID, 0, len(objects))
	for _, s := range objects {
		id, err := model.ParseObjectID(s)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid object id", err)
		}
		ids = append(ids, id)
	}

	rt, err := openRuntime(cmd, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	result := ReplayResult{
		Objects:       make([]ReplayObjectResult, 0, len(ids)),
		Total:         len(ids),
		AllConsistent: true,
	}
	for _, id := range ids {
		state, err := store.Verify(cmd.Context(), rt.store, id)
		r := ReplayObjectResult{
			Object:     id.String(),
			Revision:   state.Revision,
			Operations: len(state.Ops),
			Gaps:       state.Gaps,
			Consistent: err == nil,
		}
		if err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return WrapExitError(ExitCommandError, "store unavailable", err)
			}
			r.Error = err.Error()
			result.AllConsistent = false
		}
		result.Objects = append(result.Objects, r)
	}

	if opts.Format != "text" {
		out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		if result.AllConsistent {
			return out.Success(result)
		}
		if err := out.Error("E_REPLAY_MISMATCH", "replay verification failed", result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "replay verification failed")
	}

	return outputReplayText(cmd, result, opts.Verbose)
}

func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d object(s)\n", result.Total)
	fmt.Fprintln(w)

	for _, obj := range result.Objects {
		mark := markPass
		if !obj.Consistent {
			mark = markFail
		}
		fmt.Fprintf(w, "%s %s\n", mark, obj.Object)
		fmt.Fprintf(w, "  Revision: %d, operations: %d\n", obj.Revision, obj.Operations)
		if len(obj.Gaps) > 0 {
			fmt.Fprintf(w, "  Missing revisions: %v\n", obj.Gaps)
		}
		if obj.Error != "" && (verbose || len(obj.Gaps) == 0) {
			fmt.Fprintf(w, "  %s\n", obj.Error)
		}
		fmt.Fprintln(w)
	}

	if result.AllConsistent {
		fmt.Fprintf(w, "%s All objects replay to their stored state\n", markPass)
		return nil
	}

	fmt.Fprintf(w, "%s Replay verification failed\n", markFail)
	return NewExitError(ExitFailure, "replay verification failed")
}
