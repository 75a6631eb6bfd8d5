package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/store"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	Revision int64 // -1 for the current revision
}

// SnapshotOutput is an object's value at one revision.
type SnapshotOutput struct {
	Object   string          `json:"object"`
	Revision int64           `json:"revision"`
	Value    json.RawMessage `json:"value"`
}

func (o SnapshotOutput) renderText(w io.Writer) {
	fmt.Fprintf(w, "%s @ %d\n%s\n", o.Object, o.Revision, o.Value)
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot <tenant/type/id>",
		Short: "Print an object's value",
		Long: `Print an object's current value, or its value at an earlier
revision rebuilt from the log.

Examples:
  otcore snapshot gym/boulder/wall-7
  otcore snapshot gym/boulder/wall-7 --revision 2 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(opts, args[0], cmd)
		},
	}

	addStoreFlags(cmd)
	cmd.Flags().Int64Var(&opts.Revision, "revision", -1, "revision to rebuild (default current)")

	return cmd
}

func runSnapshot(opts *SnapshotOptions, object string, cmd *cobra.Command) error {
	id, err := model.ParseObjectID(object)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid object id", err)
	}

	rt, err := openRuntime(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	var snap model.Snapshot
	if opts.Revision >= 0 {
		snap, err = store.SnapshotAt(cmd.Context(), rt.store, id, opts.Revision)
	} else {
		snap, err = rt.store.Get(cmd.Context(), id)
	}
	if err != nil {
		return storeExitError(err)
	}

	value, err := model.MarshalCanonical(snap.Value)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode value", err)
	}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return out.Success(SnapshotOutput{Object: id.String(), Revision: snap.Revision, Value: value})
}

// storeExitError maps store failures onto exit codes: a missing object
// or revision is a failed lookup, anything else a command error.
func storeExitError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return WrapExitError(ExitFailure, "object not found", err)
	case errors.Is(err, store.ErrRevisionOutOfRange):
		return WrapExitError(ExitFailure, "revision out of range", err)
	}
	return WrapExitError(ExitCommandError, "store error", err)
}
