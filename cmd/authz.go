package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/frahmantamala/coursehub/internal/authz"
	"github.com/spf13/cobra"
)

var (
	authzActorID int64
	authzKind    string
	authzOwnPerm string
	authzModPerm string
	authzOwnerID int64
)

var authzCmd = &cobra.Command{
	Use:   "authz",
	Short: "Inspect and change user permissions",
}

var authzResolveCmd = &cobra.Command{
	Use:   "resolve [user-id]",
	Short: "Print the effective permissions of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		return withDeps(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
			res, err := deps.Resolver.Resolve(ctx, userID)
			if err != nil {
				return err
			}
			overrides, err := deps.Resolver.OverridesFor(ctx, userID)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"user_id":     res.UserID,
				"role":        res.RoleName,
				"permissions": res.Permissions.Names(),
				"grants":      overrides.Grants.Names(),
				"blocks":      overrides.Blocks.Names(),
			})
		})
	},
}

type overrideCall func(s *authz.OverrideService, ctx context.Context, actorID, userID int64, permission string) (bool, error)

func overrideCommand(use, short, action string, call overrideCall) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [user-id] [permission]",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withDeps(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
				changed, err := call(deps.Overrides, ctx, authzActorID, userID, args[1])
				if err != nil {
					return err
				}
				return printJSON(authz.OverrideMutationResponse{
					UserID:     userID,
					Permission: args[1],
					Action:     action,
					Changed:    changed,
				})
			})
		},
	}
}

var authzCanModifyCmd = &cobra.Command{
	Use:   "can-modify [user-id]",
	Short: "Decide whether a user may modify a resource owned by --owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		return withDeps(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
			var d authz.Decision
			if authzKind != "" {
				d, err = deps.Guard.CanModifyResource(ctx, userID, authz.ResourceKind(authzKind), authzOwnerID)
			} else {
				d, err = deps.Guard.CanModify(ctx, userID, authzOwnerID, authzOwnPerm, authzModPerm)
			}
			if err != nil {
				return err
			}
			return printJSON(authz.NewDecisionResponse(d))
		})
	},
}

func init() {
	authzCmd.PersistentFlags().Int64Var(&authzActorID, "actor", 0, "user id recorded as the author of the change")

	authzCanModifyCmd.Flags().Int64Var(&authzOwnerID, "owner", 0, "owner user id of the resource")
	authzCanModifyCmd.Flags().StringVar(&authzKind, "kind", "", "resource kind: comment, rating or resource")
	authzCanModifyCmd.Flags().StringVar(&authzOwnPerm, "own", "", "own-resource permission (when --kind is not set)")
	authzCanModifyCmd.Flags().StringVar(&authzModPerm, "moderate", "", "moderate-all permission (when --kind is not set)")
	_ = authzCanModifyCmd.MarkFlagRequired("owner")

	authzCmd.AddCommand(
		authzResolveCmd,
		overrideCommand("grant", "Grant a permission to a user regardless of role", authz.ActionGrant, (*authz.OverrideService).Grant),
		overrideCommand("block", "Block a permission for a user regardless of role", authz.ActionBlock, (*authz.OverrideService).Block),
		overrideCommand("revoke", "Remove a grant", authz.ActionRevoke, (*authz.OverrideService).Revoke),
		overrideCommand("unblock", "Remove a block", authz.ActionUnblock, (*authz.OverrideService).Unblock),
		authzCanModifyCmd,
	)
}

func withDeps(ctx context.Context, fn func(context.Context, *Dependencies) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps, err := initializeDependencies(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()
	return fn(ctx, deps)
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
