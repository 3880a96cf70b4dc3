package cli

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Lazy user maintenance (requires --admin-token)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if cfg.AdminToken == "" {
				return fmt.Errorf("--admin-token is required")
			}
			return nil
		},
	}

	cmd.AddCommand(newAdminLazyCmd())
	cmd.AddCommand(newAdminCleanupCmd())
	cmd.AddCommand(newAdminDeleteCmd())

	return cmd
}

func olderThanQuery(olderThan time.Duration) string {
	if olderThan == 0 {
		return ""
	}
	return "?" + url.Values{"older_than": {olderThan.String()}}.Encode()
}

func newAdminLazyCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "lazy",
		Short: "List lazy users older than a given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result LazyUsers

			if err := client.Get("/api/v1/admin/lazy"+olderThanQuery(olderThan), &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum lazy user age (default: server lazy_ttl)")

	return cmd
}

func newAdminCleanupCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete lazy users older than a given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result CleanupResult

			if err := client.Post("/api/v1/admin/lazy/cleanup"+olderThanQuery(olderThan), nil, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum lazy user age (default: server lazy_ttl)")

	return cmd
}

func newAdminDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Delete("/api/v1/admin/users/" + url.PathEscape(args[0])); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.PrintMessage(fmt.Sprintf("Deleted user %s", args[0]))
			return nil
		},
	}
}
