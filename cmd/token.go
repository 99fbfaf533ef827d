package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Mint an access and refresh token for an existing user (development only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		return withDeps(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
			tokens, err := deps.Auth.IssueFor(ctx, userID)
			if err != nil {
				return err
			}
			return printJSON(tokens)
		})
	},
}
