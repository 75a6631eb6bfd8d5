package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/otcore/internal/model"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Since int64
}

// LogOutput lists committed operations in revision order.
type LogOutput struct {
	Object     string                     `json:"object"`
	Since      int64                      `json:"since"`
	Operations []model.CommittedOperation `json:"operations"`
}

func (o LogOutput) renderText(w io.Writer) {
	if len(o.Operations) == 0 {
		fmt.Fprintf(w, "%s: no operations after revision %d\n", o.Object, o.Since)
		return
	}
	for _, op := range o.Operations {
		writeOperation(w, op)
	}
}

// writeOperation prints one operation as a summary line.
func writeOperation(w io.Writer, op model.CommittedOperation) {
	fmt.Fprintf(w, "r%d  base=%d  %-12s %s  %d patch(es)\n",
		op.Revision, op.BaseRevision, op.Author,
		op.CommittedAt.UTC().Format(time.RFC3339), len(op.Patches))
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <tenant/type/id>",
		Short: "List an object's committed operations",
		Long: `List committed operations with revision greater than --since.

Examples:
  otcore log gym/boulder/wall-7
  otcore log gym/boulder/wall-7 --since 10 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, args[0], cmd)
		},
	}

	addStoreFlags(cmd)
	cmd.Flags().Int64Var(&opts.Since, "since", 0, "list operations after this revision")

	return cmd
}

func runLog(opts *LogOptions, object string, cmd *cobra.Command) error {
	id, err := model.ParseObjectID(object)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid object id", err)
	}
	if opts.Since < 0 {
		return NewExitError(ExitCommandError, "--since must be non-negative")
	}

	rt, err := openRuntime(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	ops, err := rt.store.ListCommittedSince(cmd.Context(), id, opts.Since)
	if err != nil {
		return storeExitError(err)
	}
	if ops == nil {
		ops = []model.CommittedOperation{}
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return out.Success(LogOutput{Object: id.String(), Since: opts.Since, Operations: ops})
}
