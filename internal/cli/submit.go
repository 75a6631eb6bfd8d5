package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/pipeline"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Base    int64
	Author  string
	Nonce   string
	Patches string // inline JSON array
	File    string // JSON array file, "-" for stdin
}

// SubmitOutput is the outcome of one submission.
type SubmitOutput struct {
	Object    string        `json:"object"`
	Revision  int64         `json:"revision"`
	Applied   model.Patches `json:"applied"`
	Missed    model.Patches `json:"missed"`
	Duplicate bool          `json:"duplicate"`
	Skipped   bool          `json:"skipped"`
	Attempts  int           `json:"attempts"`
}

func (o SubmitOutput) renderText(w io.Writer) {
	switch {
	case o.Duplicate:
		fmt.Fprintf(w, "%s: already committed at revision %d\n", o.Object, o.Revision)
	case o.Skipped:
		fmt.Fprintf(w, "%s: no change, still at revision %d\n", o.Object, o.Revision)
	default:
		fmt.Fprintf(w, "%s: committed revision %d (%d attempt(s))\n", o.Object, o.Revision, o.Attempts)
	}
	fmt.Fprintf(w, "  applied: %d patch(es)\n", len(o.Applied))
	if len(o.Missed) > 0 {
		fmt.Fprintf(w, "  missed:  %d patch(es) since base\n", len(o.Missed))
	}
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <tenant/type/id>",
		Short: "Submit patches directly to the store",
		Long: `Commit a patch sequence through the pipeline without a server.

Patches are a JSON array in wire form, given inline or read from a file.
Concurrent edits committed after --base are rebased over, exactly as
the HTTP API does.

Exit codes:
  0 - Committed, duplicate or no-op
  1 - Submission rejected (NOT_FOUND, MALFORMED_PATCH, ...)
  2 - Command error (bad arguments, store unreachable)

Examples:
  otcore submit gym/boulder/wall-7 --base 0 --author alice \
    --patches '[{"op":"set","path":"grade","value":"6a"}]'
  otcore submit gym/boulder/wall-7 --base 3 --author bob --file edit.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args[0], cmd)
		},
	}

	addStoreFlags(cmd)
	cmd.Flags().Int64Var(&opts.Base, "base", 0, "base revision the patches were made against")
	cmd.Flags().StringVar(&opts.Author, "author", "", "author (client id) of the submission (required)")
	_ = cmd.MarkFlagRequired("author")
	cmd.Flags().StringVar(&opts.Nonce, "nonce", "", "distinguishes a deliberate repeat of an identical edit from a retry")
	cmd.Flags().StringVar(&opts.Patches, "patches", "", "patches as a JSON array")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read patches from file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("patches", "file")
	cmd.MarkFlagsOneRequired("patches", "file")

	return cmd
}

func runSubmit(opts *SubmitOptions, object string, cmd *cobra.Command) error {
	id, err := model.ParseObjectID(object)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid object id", err)
	}
	patches, err := readPatches(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid patches", err)
	}

	rt, err := openRuntime(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	pl, err := rt.pipeline(nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build pipeline", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	res, err := pl.Submit(cmd.Context(), pipeline.Submission{
		ObjectID:     id,
		BaseRevision: opts.Base,
		Patches:      patches,
		Author:       opts.Author,
		Nonce:        opts.Nonce,
	})
	if err != nil {
		var se *pipeline.SubmitError
		if !errors.As(err, &se) {
			return WrapExitError(ExitCommandError, "submit failed", err)
		}
		var details any
		if se.PatchIndex >= 0 {
			details = map[string]int{"patch_index": se.PatchIndex}
		}
		if ferr := out.Error(string(se.Code), se.Message, details); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "submission rejected", err)
	}

	out.VerboseLog("%d operation(s) committed since base %d", len(res.Previous), opts.Base)
	return out.Success(SubmitOutput{
		Object:    id.String(),
		Revision:  res.Revision,
		Applied:   nonNil(res.Applied),
		Missed:    nonNil(res.Missed),
		Duplicate: res.Duplicate,
		Skipped:   res.Skipped,
		Attempts:  res.Attempts,
	})
}

func readPatches(opts *SubmitOptions, cmd *cobra.Command) (model.Patches, error) {
	var data []byte
	switch {
	case opts.File == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		data = b
	case opts.File != "":
		b, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, err
		}
		data = b
	default:
		data = []byte(opts.Patches)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, errors.New("no patches given")
	}

	var ps model.Patches
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, err
	}
	return ps, nil
}

func nonNil(ps []model.Patch) model.Patches {
	if ps == nil {
		return model.Patches{}
	}
	return ps
}
