// ABOUTME: One-shot subcommands operating on the conversation list over REST
// ABOUTME: list, history, rename, delete and pin

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2389/chatline/internal/api"
	"github.com/2389/chatline/internal/reconciler"
	"github.com/2389/chatline/internal/session"
)

// resolve looks ref up in the server's conversation list.
func resolve(ctx context.Context, c *api.Client, ref string) (string, error) {
	convs, err := c.ListConversations(ctx)
	if err != nil {
		return "", fmt.Errorf("listing conversations: %w", err)
	}
	return session.ResolveRef(convs, ref)
}

// newListCmd instantiates and returns the list command.
func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			convs, err := a.client().ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			if len(convs) == 0 {
				infoColor.Fprintln(cmd.OutOrStdout(), "no conversations")
				return nil
			}
			printConversations(cmd.OutOrStdout(), convs)
			return nil
		},
	}
}

// newHistoryCmd instantiates and returns the history command.
func newHistoryCmd(a *app) *cobra.Command {
	var opts struct {
		Limit int
	}

	cmd := &cobra.Command{
		Use:   "history <conversation>",
		Short: "Print the messages of a conversation",
		Long:  "Print the messages of a conversation. The conversation is a list position, an id, or an id prefix of at least four characters.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := a.client()

			id, err := resolve(ctx, client, args[0])
			if err != nil {
				return err
			}
			detail, err := client.GetConversation(ctx, id)
			if err != nil {
				return err
			}

			limit := a.cfg.Session.HistoryLimit
			if cmd.Flags().Changed("limit") {
				limit = opts.Limit
			}
			msgs := reconciler.Merge(detail.Messages)
			offset := 0
			if limit > 0 && len(msgs) > limit {
				offset = len(msgs) - limit
			}

			out := cmd.OutOrStdout()
			titleColor.Fprintf(out, "%s\n", detail.Title)
			printMessages(out, msgs[offset:], a.cfg.User.Handle, offset)
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "number of trailing messages to print, 0 for all (default session.history_limit)")
	return cmd
}

// newRenameCmd instantiates and returns the rename command.
func newRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <conversation> <title>",
		Short: "Rename a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := a.client()

			id, err := resolve(ctx, client, args[0])
			if err != nil {
				return err
			}
			conv, err := client.UpdateConversation(ctx, id, api.UpdateRequest{Title: &args[1]})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %q\n", conv.ID, conv.Title)
			return nil
		},
	}
}

// newDeleteCmd instantiates and returns the delete command.
func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := a.client()

			id, err := resolve(ctx, client, args[0])
			if err != nil {
				return err
			}
			if err := client.DeleteConversation(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			return nil
		},
	}
}

// newPinCmd instantiates and returns the pin command.
func newPinCmd(a *app) *cobra.Command {
	var unpin bool

	cmd := &cobra.Command{
		Use:   "pin <conversation>",
		Short: "Pin a conversation to the top of the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := a.client()

			id, err := resolve(ctx, client, args[0])
			if err != nil {
				return err
			}
			pinned := !unpin
			conv, err := client.UpdateConversation(ctx, id, api.UpdateRequest{Pinned: &pinned})
			if err != nil {
				return err
			}
			state := "pinned"
			if !conv.Pinned {
				state = "unpinned"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state, conv.ID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&unpin, "unpin", false, "unpin instead")
	return cmd
}
