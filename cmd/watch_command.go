package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/spreads/client/internal/connection"
	"github.com/spreads/client/internal/protocol"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print every push-channel frame as it arrives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := ctx.openLive()
			if err != nil {
				return err
			}
			defer l.Close()

			out := cmd.OutOrStdout()
			var (
				mu   sync.Mutex
				seen int
			)
			done := make(chan struct{})
			var doneOnce sync.Once

			defer l.router.Tap(func(msg protocol.Inbound) {
				body, _ := json.Marshal(msg)
				mu.Lock()
				defer mu.Unlock()
				seen++
				fmt.Fprintf(out, "%s %-10s %-19s %s\n",
					time.Now().Format("15:04:05.000"), msg.Domain(), msg.Type(), body)
				if count > 0 && seen >= count {
					doneOnce.Do(func() { close(done) })
				}
			})()

			gaveUp := make(chan struct{})
			var gaveUpOnce sync.Once
			defer l.conn.OnStateChange(func(st connection.State) {
				mu.Lock()
				fmt.Fprintf(out, "-- %s\n", describeState(st))
				mu.Unlock()
				if st.GaveUp {
					gaveUpOnce.Do(func() { close(gaveUp) })
				}
			})()

			fmt.Fprintf(out, "-- watching %s\n", l.conn.URL())
			if err := l.conn.Start(); err != nil {
				return err
			}

			var result error
			select {
			case <-cmd.Context().Done():
			case <-done:
			case <-gaveUp:
				result = fmt.Errorf("gave up after %d reconnect attempts: %s", connection.MaxReconnectAttempts, l.conn.LastError())
			}

			s := l.router.Stats()
			mu.Lock()
			fmt.Fprintf(out, "-- dispatched=%d dropped=%d ignored=%d malformed=%d\n",
				s.Dispatched, s.Dropped, s.Ignored, s.Malformed)
			mu.Unlock()
			return result
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "Exit after this many frames (0 = run until interrupted)")
	return cmd
}

func describeState(st connection.State) string {
	switch {
	case st.Connected:
		return "connected"
	case st.GaveUp:
		return "disconnected, giving up: " + st.LastError
	case st.ReconnectAttempts > 0:
		return fmt.Sprintf("disconnected, reconnect attempt %d/%d: %s",
			st.ReconnectAttempts, connection.MaxReconnectAttempts, st.LastError)
	default:
		return "disconnected"
	}
}
