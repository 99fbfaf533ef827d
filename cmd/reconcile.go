package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/frahmantamala/coursehub/internal/reconcile"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Sync the permission catalog and roles into the database",
	Long: `Create missing permissions and roles, bring every role's permission links to the declared set,
and ensure the bootstrap superadmin exists. Do not run two reconciliations at the same time.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runReconcile(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
			os.Exit(1)
		}
	},
}

func runReconcile(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps, err := initializeDependencies(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	result, err := deps.Reconciler.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("catalog version:      %d\n", result.CatalogVersion)
	fmt.Printf("permissions created:  %d (updated %d)\n", result.PermissionsCreated, result.PermissionsUpdated)
	fmt.Printf("roles created:        %d (updated %d)\n", result.RolesCreated, result.RolesUpdated)
	fmt.Printf("links added/removed:  %d/%d\n", result.LinksAdded, result.LinksRemoved)
	fmt.Printf("took:                 %s\n", result.Duration)
	reportBootstrap(deps.Logger, os.Stderr, result)
	return nil
}

// reportBootstrap logs the bootstrap account and writes a generated password to w exactly once.
// Only the hash is stored, and the password never reaches the log pipeline.
func reportBootstrap(lg *slog.Logger, w io.Writer, result *reconcile.Result) {
	if result == nil || !result.BootstrapCreated {
		return
	}
	generated := result.GeneratedPassword != ""
	lg.Info("bootstrap superadmin created", "email", result.BootstrapEmail, "password_generated", generated)
	if generated {
		fmt.Fprintf(w, "bootstrap superadmin %s was created with the generated password: %s\n",
			result.BootstrapEmail, result.GeneratedPassword)
	}
}
