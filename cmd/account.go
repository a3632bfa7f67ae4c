package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/frhnm/tgfleet/internal/domain"
)

func newAccountCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}

	cmd.AddCommand(
		newAccountListCmd(app),
		newAccountAddCmd(app),
		newAccountEnableCmd(app),
		newAccountDisableCmd(app),
		newAccountDeleteCmd(app),
	)

	return cmd
}

var (
	listHeaderStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	listDisabledStyle = lipgloss.NewStyle().Faint(true)
)

func newAccountListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			descriptors, err := app.accounts.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "accounts: %d\n", len(descriptors))
			if len(descriptors) == 0 {
				return nil
			}

			fmt.Fprintln(out, listHeaderStyle.Render(fmt.Sprintf("%-18s %-8s %s", "PHONE", "ENABLED", "ADDED")))
			for _, descriptor := range descriptors {
				added := "-"
				if !descriptor.AddedAt.IsZero() {
					added = descriptor.AddedAt.Format("2006-01-02")
				}
				line := fmt.Sprintf("%-18s %-8t %s", descriptor.Phone, descriptor.Enabled, added)
				if !descriptor.Enabled {
					line = listDisabledStyle.Render(line)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

// consoleChatID keys the interactive add flow in the conversation tracker;
// stdin is "the chat" when driving flows from the terminal.
const consoleChatID int64 = 0

func newAccountAddCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add",
		Short: "Add an account (phone, verification code, optional 2FA password)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			reply := func(text string) { fmt.Fprintln(out, text) }

			if err := app.lifecycle.RegisterAddAccountFlow(app.tracker, reply); err != nil {
				return err
			}
			if err := app.lifecycle.BeginAddAccount(app.tracker, consoleChatID); err != nil {
				return err
			}
			defer app.tracker.Cancel(consoleChatID)

			fmt.Fprintln(out, "Phone number (international format, e.g. +15550001111). Type /cancel to abort.")
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/cancel" {
					fmt.Fprintln(out, "Cancelled.")
					return nil
				}
				if _, err := app.tracker.Dispatch(cmd.Context(), consoleChatID, line); err != nil {
					return err
				}
				if _, active := app.tracker.Active(consoleChatID); !active {
					return nil
				}
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return fmt.Errorf("input ended before the sign-in flow finished")
		},
	}
}

func newAccountEnableCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <phone>",
		Short: "Enable an account and bring its session online",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.AccountID(strings.TrimSpace(args[0]))
			if err := app.lifecycle.Toggle(cmd.Context(), id, true); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s enabled.\n", id)
			return nil
		},
	}
}

func newAccountDisableCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <phone>",
		Short: "Disable an account and disconnect its session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.AccountID(strings.TrimSpace(args[0]))
			if err := app.lifecycle.Toggle(cmd.Context(), id, false); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s disabled.\n", id)
			return nil
		},
	}
}

func newAccountDeleteCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <phone>",
		Short: "Remove an account, its descriptor and its stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.AccountID(strings.TrimSpace(args[0]))
			if err := app.lifecycle.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s deleted.\n", id)
			return nil
		},
	}
}
