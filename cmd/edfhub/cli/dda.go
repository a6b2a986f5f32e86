package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"edfhub/internal/edf"
)

func newDDACmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dda",
		Short: "Run the DDA engine",
	}
	cmd.AddCommand(newDDARunCmd())
	return cmd
}

func newDDARunCmd() *cobra.Command {
	var filePath string
	var channels string
	var cpuTime bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run delay differential analysis against a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filePath == "" {
				return fmt.Errorf("--file-path is required")
			}
			logger := rootLogger()
			c := newCoreFromEnv(logger)
			defer c.Close()

			var chans []string
			if channels != "" {
				chans = strings.Split(channels, ",")
			}

			result := c.RunDDA(context.Background(), filePath, chans, edf.PreprocessingOptions{}, cpuTime)
			if result.Error != "" {
				return fmt.Errorf("%s: %s", result.Error, result.ErrorMessage)
			}
			cmd.Printf("Q shape: %d rows\n", len(result.Q))
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file-path", "", "EDF file to analyze")
	cmd.Flags().StringVar(&channels, "channels", "", "comma-separated channel list (defaults to selector output)")
	cmd.Flags().BoolVar(&cpuTime, "cpu-time", false, "request CPU time reporting from the DDA engine")
	return cmd
}
