package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cacheCmd := &cobra.Command{Use: "cache", Short: "Cache administration"}

	// stats
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache hit/miss counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/api/admin/cache/stats")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	cacheCmd.AddCommand(statsCmd)

	// health
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Show keyspace shape and memory usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/api/admin/cache/health")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	cacheCmd.AddCommand(healthCmd)

	// invalidate
	var pattern, class string
	var dry bool
	invalidateCmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Invalidate cache entries by pattern or per user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userFlag != "" {
				path := fmt.Sprintf("/api/admin/cache/users/%s/invalidate?class=%s", userFlag, class)
				data, err := doPostJSON(path, nil)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(os.Stdout, string(data))
				return nil
			}
			if pattern == "" {
				return fmt.Errorf("--pattern or --user required")
			}
			path := fmt.Sprintf("/api/admin/cache/invalidate?dryRun=%t", dry)
			data, err := doPostJSON(path, map[string]interface{}{"pattern": pattern})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	invalidateCmd.Flags().StringVarP(&pattern, "pattern", "p", "", "Glob pattern of keys to delete")
	invalidateCmd.Flags().StringVarP(&userFlag, "user", "u", "", "User ID for per-user invalidation")
	invalidateCmd.Flags().StringVarP(&class, "class", "c", "all", "Cache class (reading, list, latest, all)")
	invalidateCmd.Flags().BoolVar(&dry, "dry-run", false, "Report matches without deleting")
	cacheCmd.AddCommand(invalidateCmd)

	// cleanup
	var maxAge int
	var cleanupDry bool
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete cached readings older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/admin/cache/cleanup?maxAgeDays=%d&dryRun=%t", maxAge, cleanupDry)
			data, err := doPostJSON(path, nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	cleanupCmd.Flags().IntVar(&maxAge, "max-age-days", 30, "Delete entries older than this many days")
	cleanupCmd.Flags().BoolVar(&cleanupDry, "dry-run", false, "Report matches without deleting")
	cacheCmd.AddCommand(cleanupCmd)

	// warm
	var warmDays int
	warmCmd := &cobra.Command{
		Use:   "warm USER_ID",
		Short: "Preload a user's recent readings into the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/admin/cache/users/%s/warm?days=%d", args[0], warmDays)
			data, err := doPostJSON(path, nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	warmCmd.Flags().IntVar(&warmDays, "days", 7, "Number of recent days to warm")
	cacheCmd.AddCommand(warmCmd)

	// refresh
	var force bool
	refreshCmd := &cobra.Command{
		Use:   "refresh USER_ID DATE",
		Short: "Repopulate one cached reading from the repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/admin/cache/users/%s/refresh/%s?force=%t", args[0], args[1], force)
			data, err := doPostJSON(path, nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	refreshCmd.Flags().BoolVar(&force, "force", false, "Refresh even when the entry is still fresh")
	cacheCmd.AddCommand(refreshCmd)

	// flush
	var flushPattern string
	var confirm bool
	flushCmd := &cobra.Command{
		Use:   "flush",
		Short: "Bulk-delete matching keys (requires --confirm)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flushPattern == "" {
				return fmt.Errorf("--pattern required")
			}
			data, err := doPostJSON("/api/admin/cache/flush", map[string]interface{}{
				"pattern": flushPattern,
				"confirm": confirm,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	flushCmd.Flags().StringVarP(&flushPattern, "pattern", "p", "", "Glob pattern of keys to flush")
	flushCmd.Flags().BoolVar(&confirm, "confirm", false, "Acknowledge the bulk delete")
	cacheCmd.AddCommand(flushCmd)

	rootCmd.AddCommand(cacheCmd)
}
