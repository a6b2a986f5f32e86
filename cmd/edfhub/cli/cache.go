package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or manage the EDF caches",
	}
	cmd.AddCommand(newCacheStatsCmd(), newCacheClearCmd(), newCacheWarmupCmd())
	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print aggregated cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := rootLogger()
			c := newCoreFromEnv(logger)
			defer c.Close()

			stats := c.Orchestrator.Stats()
			cmd.Printf("metadata: %+v\n", stats.Metadata)
			cmd.Printf("chunks:   %+v\n", stats.Chunks)
			cmd.Printf("handles:  %+v\n", stats.Handles)
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear one file's cache entries, or every entry if --file-path is omitted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := rootLogger()
			c := newCoreFromEnv(logger)
			defer c.Close()

			if filePath == "" {
				c.Orchestrator.ClearAll()
				cmd.Println("cleared all caches")
				return nil
			}
			if !c.Config.IsAllowedPath(filePath) {
				return fmt.Errorf("path not under any allowed root: %s", filePath)
			}
			c.Orchestrator.Invalidate(filePath)
			cmd.Printf("cleared cache entries for %s\n", filePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file-path", "", "path to invalidate (clears every entry when omitted)")
	return cmd
}

func newCacheWarmupCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "warmup",
		Short: "Force-load a file's metadata into the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filePath == "" {
				return fmt.Errorf("--file-path is required")
			}
			logger := rootLogger()
			c := newCoreFromEnv(logger)
			defer c.Close()

			meta, err := c.GetMetadata(filePath)
			if err != nil {
				return err
			}
			cmd.Printf("warmed up %s: %d signals, %d samples\n", filePath, meta.NumSignals, meta.TotalSamples)
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file-path", "", "file to warm up")
	return cmd
}
