package cli

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/notify"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	From     int64
	Limit    int
	Interval time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <tenant/type/id>",
		Short: "Follow an object's operations as they are committed",
		Long: `Print every operation committed after --from, then keep polling
the log for new ones until interrupted or --limit is reached.

With --format json each operation is printed as one JSON line; with
--format yaml as one YAML document.

Examples:
  otcore watch gym/boulder/wall-7
  otcore watch gym/boulder/wall-7 --from 12 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	addStoreFlags(cmd)
	cmd.Flags().Int64Var(&opts.From, "from", 0, "print operations after this revision")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "stop after this many operations (0 = no limit)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "poll interval (default notify.poll_interval)")

	return cmd
}

func runWatch(opts *WatchOptions, object string, cmd *cobra.Command) error {
	id, err := model.ParseObjectID(object)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid object id", err)
	}

	rt, err := openRuntime(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	interval := opts.Interval
	if interval <= 0 {
		interval = rt.cfg.Notify.PollInterval
	}
	poller := notify.NewPoller(rt.store, notify.WithLogger(rt.logger), notify.WithInterval(interval))

	emit := watchPrinter(opts.Format, cmd)
	seen := 0
	for op, err := range poller.Subscribe(cmd.Context(), id, opts.From) {
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return storeExitError(err)
		}
		if err := emit(op); err != nil {
			return err
		}
		seen++
		if opts.Limit > 0 && seen >= opts.Limit {
			break
		}
	}
	return nil
}

// watchPrinter returns the per-operation printer for format.
func watchPrinter(format string, cmd *cobra.Command) func(model.CommittedOperation) error {
	w := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		return func(op model.CommittedOperation) error { return enc.Encode(op) }
	case "yaml":
		return func(op model.CommittedOperation) error {
			generic, err := toGeneric(op)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if _, err := w.Write([]byte("---\n")); err != nil {
				return err
			}
			if err := enc.Encode(generic); err != nil {
				return err
			}
			return enc.Close()
		}
	}
	return func(op model.CommittedOperation) error {
		writeOperation(w, op)
		return nil
	}
}
