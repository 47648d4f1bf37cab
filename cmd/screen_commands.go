package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/spreads/client/internal/api"
	"github.com/spreads/client/internal/connection"
	apperrors "github.com/spreads/client/internal/errors"
	"github.com/spreads/client/internal/keepawake"
	"github.com/spreads/client/internal/protocol"
	"github.com/spreads/client/internal/session"
	"github.com/spreads/client/internal/tui"
)

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "capture <workflow-id>",
		Short:       "Open the capture screen for a workflow",
		Annotations: map[string]string{"screen": "true"},
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal(cmd.OutOrStdout()) {
				return errors.New("the capture screen needs an interactive terminal")
			}

			l, err := ctx.openLive()
			if err != nil {
				return err
			}
			defer l.Close()

			wf, err := l.client.GetWorkflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			sess := session.NewCaptureSession(wf, session.Deps{
				Sender:   l.conn,
				Notifier: l.banners,
				Updater:  l.client,
			})
			if err := l.conn.Start(); err != nil {
				return err
			}

			final, err := tui.Run(cmd.Context(), tui.NewCaptureModel(wf.Name, sess, l.tuiDeps()))
			if err != nil {
				return err
			}
			if m, ok := final.(tui.CaptureModel); ok && m.Done {
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %d pages of %s. Next: spreadsctl process %s\n",
					len(sess.Pages()), wf.Name, wf.ID)
			}
			return nil
		},
	}
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		noTUI     bool
		keepAwake bool
	)

	cmd := &cobra.Command{
		Use:         "process <workflow-id>",
		Short:       "Run post-capture processing and follow its progress",
		Annotations: map[string]string{"screen": "true"},
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := ctx.openLive()
			if err != nil {
				return err
			}
			defer l.Close()

			wf, err := l.client.GetWorkflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			sess := session.NewProcessingSession(wf, session.Deps{
				Sender:   l.conn,
				Notifier: l.banners,
			})
			if err := l.conn.Start(); err != nil {
				return err
			}

			if keepAwake {
				guard := keepawake.New(keepawake.NewCommand("processing " + wf.Name))
				if st := guard.Hold(cmd.Context()); st.State != keepawake.StateOn {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: cannot keep the machine awake: %s\n", st.LastError)
				}
				defer guard.Release(context.Background())
			}

			if noTUI || !isTerminal(cmd.OutOrStdout()) {
				return followProcessing(cmd.Context(), cmd.OutOrStdout(), l, wf, sess)
			}
			_, err = tui.Run(cmd.Context(), tui.NewProcessingModel(wf.Name, sess, l.tuiDeps()))
			return err
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Print progress lines instead of opening the screen")
	cmd.Flags().BoolVar(&keepAwake, "keep-awake", false, "Stop this machine from sleeping until processing ends")
	return cmd
}

// followProcessing prints stage changes, steps and log lines until the
// pipeline ends. Interrupting cancels the pipeline.
func followProcessing(ctx context.Context, out io.Writer, l *live, wf *api.Workflow, sess *session.ProcessingSession) error {
	switch wf.Status {
	case api.StatusCaptured, api.StatusProcessing:
	case api.StatusFinished, api.StatusDone:
		fmt.Fprintf(out, "%s is already processed\n", wf.Name)
		return nil
	default:
		return apperrors.New(apperrors.CodeProcessingNotCaptured,
			fmt.Sprintf("%s is %q; capture and finish it first", wf.Name, wf.Status))
	}

	r := l.router
	defer r.SubscribeProcessing(sess)()

	changed := make(chan struct{}, 1)
	poke := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	defer sess.OnChange(poke)()
	defer l.conn.OnStateChange(func(connection.State) { poke() })()

	var (
		lastStage protocol.Stage
		steps     int
		lastLog   *session.LogEntry
	)
	for {
		if l.conn.Connected() {
			if err := sess.Mount(); err != nil {
				return err
			}
		}

		st := sess.State()
		if st.Stage != lastStage {
			lastStage = st.Stage
			fmt.Fprintf(out, "[%5.1f%%] %s\n", st.DisplayedProgress(), st.Stage.Describe())
		}
		for _, s := range sess.Steps()[steps:] {
			fmt.Fprintf(out, "         step %s %s (%.1fs)\n", s.Name, s.Status, s.Duration.Seconds())
			steps++
		}
		lastLog = printNewLogs(out, sess.Logs(), lastLog)

		if st.Terminal() {
			if st.Stage == protocol.StageFailed {
				return apperrors.ProcessingFailed(st.Err)
			}
			fmt.Fprintf(out, "%s finished\n", wf.Name)
			return nil
		}
		if l.conn.State().GaveUp {
			return apperrors.New(apperrors.CodeTransportDialFailed, "lost the connection to the server: "+l.conn.LastError())
		}

		select {
		case <-ctx.Done():
			_ = sess.Cancel()
			fmt.Fprintln(out, "Cancelled")
			return ctx.Err()
		case <-changed:
		}
	}
}

// printNewLogs prints the entries of tail that come after last.
func printNewLogs(out io.Writer, tail []session.LogEntry, last *session.LogEntry) *session.LogEntry {
	start := 0
	if last != nil {
		for i := len(tail) - 1; i >= 0; i-- {
			if tail[i] == *last {
				start = i + 1
				break
			}
		}
	}
	for _, e := range tail[start:] {
		fmt.Fprintf(out, "         %-7s %s\n", e.Level, e.Message)
	}
	if len(tail) == 0 {
		return last
	}
	newest := tail[len(tail)-1]
	return &newest
}
