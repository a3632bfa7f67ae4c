package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/frhnm/tgfleet/internal/bulk"
	"github.com/frhnm/tgfleet/internal/domain"
	"github.com/frhnm/tgfleet/internal/ports"
)

type bulkFlags struct {
	accounts []string
	all      bool
}

func newBulkCmd(app *app) *cobra.Command {
	flags := &bulkFlags{}

	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Run one action across many accounts",
	}
	cmd.PersistentFlags().StringSliceVar(&flags.accounts, "accounts", nil, "phone numbers to act with (comma separated)")
	cmd.PersistentFlags().BoolVar(&flags.all, "all", false, "act with every enabled account")

	cmd.AddCommand(
		newBulkJoinCmd(app, flags),
		newBulkLeaveCmd(app, flags),
		newBulkReactCmd(app, flags),
		newBulkVoteCmd(app, flags),
		newBulkBlockCmd(app, flags),
		newBulkDMCmd(app, flags),
		newBulkCommentCmd(app, flags),
	)

	return cmd
}

func newBulkJoinCmd(app *app, flags *bulkFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "join <channel>",
		Short: "Join a channel with the selected accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			channel := args[0]
			return runBulk(cmd, app, flags, "join", func(ctx context.Context, client ports.Client) error {
				return client.JoinChannel(ctx, channel)
			})
		},
	}
}

func newBulkLeaveCmd(app *app, flags *bulkFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "leave <channel>",
		Short: "Leave a channel with the selected accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			channel := args[0]
			return runBulk(cmd, app, flags, "leave", func(ctx context.Context, client ports.Client) error {
				return client.LeaveChannel(ctx, channel)
			})
		},
	}
}

func newBulkReactCmd(app *app, flags *bulkFlags) *cobra.Command {
	var emoji string
	cmd := &cobra.Command{
		Use:   "react <message-link>",
		Short: "React to a message with the selected accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := domain.ParseMessageLink(args[0])
			if err != nil {
				return err
			}
			return runBulk(cmd, app, flags, "react", func(ctx context.Context, client ports.Client) error {
				return client.React(ctx, ref.Peer, ref.MessageID, emoji)
			})
		},
	}
	cmd.Flags().StringVar(&emoji, "emoji", "👍", "reaction emoji")
	return cmd
}

func newBulkVoteCmd(app *app, flags *bulkFlags) *cobra.Command {
	var option string
	cmd := &cobra.Command{
		Use:   "vote <message-link>",
		Short: "Vote in a poll with the selected accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := domain.ParseMessageLink(args[0])
			if err != nil {
				return err
			}
			return runBulk(cmd, app, flags, "vote", func(ctx context.Context, client ports.Client) error {
				return client.Vote(ctx, ref.Peer, ref.MessageID, option)
			})
		},
	}
	cmd.Flags().StringVar(&option, "option", "", "poll option to vote for")
	_ = cmd.MarkFlagRequired("option")
	return cmd
}

func newBulkBlockCmd(app *app, flags *bulkFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "block <user>",
		Short: "Block a user with the selected accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer := args[0]
			return runBulk(cmd, app, flags, "block", func(ctx context.Context, client ports.Client) error {
				return client.Block(ctx, peer)
			})
		},
	}
}

func newBulkDMCmd(app *app, flags *bulkFlags) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "dm <user>",
		Short: "Send a direct message with the selected accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer := args[0]
			return runBulk(cmd, app, flags, "dm", func(ctx context.Context, client ports.Client) error {
				return client.SendMessage(ctx, peer, message)
			})
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "message text")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newBulkCommentCmd(app *app, flags *bulkFlags) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "comment <message-link>",
		Short: "Comment under a channel post with the selected accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := domain.ParseMessageLink(args[0])
			if err != nil {
				return err
			}
			return runBulk(cmd, app, flags, "comment", func(ctx context.Context, client ports.Client) error {
				return client.Comment(ctx, ref.Peer, ref.MessageID, message)
			})
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "comment text")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func runBulk(cmd *cobra.Command, app *app, flags *bulkFlags, operation string, op bulk.Operation) error {
	ctx := cmd.Context()

	if _, err := app.lifecycle.LoadPersisted(ctx); err != nil {
		return err
	}

	ids, err := resolveAccounts(app, flags)
	if err != nil {
		return err
	}

	label := fmt.Sprintf("Running %s across %d accounts...", operation, len(ids))
	result, err := runBulkWithSpinner(ctx, cmd.OutOrStdout(), app, label, func(ctx context.Context) domain.BulkResult {
		return app.executor.Run(ctx, ids, operation, op)
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d succeeded, %d failed, %d revoked (run %s)\n",
		operation, result.Succeeded, result.Failed, len(result.Revoked), result.RunID)
	for _, id := range result.Revoked {
		fmt.Fprintf(out, "removed revoked account %s\n", id)
	}
	return nil
}

func resolveAccounts(app *app, flags *bulkFlags) ([]domain.AccountID, error) {
	if flags.all {
		ids := app.registry.ActiveIDs()
		if len(ids) == 0 {
			return nil, fmt.Errorf("no accounts are online")
		}
		return ids, nil
	}
	if len(flags.accounts) == 0 {
		return nil, fmt.Errorf("select accounts with --accounts or --all")
	}

	ids := make([]domain.AccountID, 0, len(flags.accounts))
	for _, raw := range flags.accounts {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		ids = append(ids, domain.AccountID(trimmed))
	}
	return ids, nil
}
