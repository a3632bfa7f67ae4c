package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/frhnm/tgfleet/internal/convo"
	"github.com/frhnm/tgfleet/internal/registry"
)

func newMonitorCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Watch all sessions for configured keywords and forward matches",
		Long: "monitor brings every enabled session online and forwards keyword matches " +
			"to the operator channel. While it runs, the keyword and ignore lists can be " +
			"edited from the console: /addkeyword, /removekeyword, /ignore, /unignore, /keywords.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			loaded, err := app.lifecycle.LoadPersisted(ctx)
			if err != nil {
				return err
			}
			if loaded == 0 {
				return fmt.Errorf("no sessions came online; add or enable accounts first")
			}

			app.registry.WithSnapshot(func(entries []registry.Entry) {
				for _, entry := range entries {
					app.monitor.Attach(entry.Client)
				}
			})

			out := cmd.OutOrStdout()
			reply := func(text string) { fmt.Fprintln(out, text) }
			if err := app.monitor.RegisterFlows(app.tracker, reply); err != nil {
				return err
			}

			fmt.Fprintf(out, "monitoring %d sessions for %d keywords (ctrl-c to stop)\n",
				loaded, len(app.monitor.Keywords()))

			go consoleLoop(ctx, app, cmd.InOrStdin(), reply)

			<-ctx.Done()
			fmt.Fprintln(out, "stopping monitor")
			return nil
		},
	}
}

var consoleFlows = map[string]struct {
	kind   convo.FlowKind
	prompt string
}{
	"/addkeyword":    {kind: convo.FlowAddKeyword, prompt: "Send the keyword to watch for."},
	"/removekeyword": {kind: convo.FlowRemoveKeyword, prompt: "Send the keyword to remove."},
	"/ignore":        {kind: convo.FlowIgnoreUser, prompt: "Send the user ID to ignore."},
	"/unignore":      {kind: convo.FlowUnignoreUser, prompt: "Send the user ID to stop ignoring."},
}

// consoleLoop lets the operator edit the keyword and ignore lists while the
// monitor runs. Commands open a flow; any following line is fed to it.
func consoleLoop(ctx context.Context, app *app, in io.Reader, reply func(string)) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if _, active := app.tracker.Active(consoleChatID); active {
			if line == "/cancel" {
				app.tracker.Cancel(consoleChatID)
				reply("Cancelled.")
				continue
			}
			if _, err := app.tracker.Dispatch(ctx, consoleChatID, line); err != nil {
				reply(fmt.Sprintf("That didn't work: %v.", err))
			}
			continue
		}

		switch {
		case line == "/keywords":
			reply(fmt.Sprintf("Watching %d keywords: %s",
				len(app.monitor.Keywords()), strings.Join(app.monitor.Keywords(), ", ")))
		case line == "/cancel":
			reply("Nothing to cancel.")
		default:
			flow, ok := consoleFlows[line]
			if !ok {
				reply("Unknown command. Use /addkeyword, /removekeyword, /ignore, /unignore or /keywords.")
				continue
			}
			if err := app.tracker.Begin(consoleChatID, flow.kind, nil); err != nil {
				reply(fmt.Sprintf("That didn't work: %v.", err))
				continue
			}
			reply(flow.prompt)
		}
	}
}
