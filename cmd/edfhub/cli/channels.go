package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newChannelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Work with channel selection",
	}
	cmd.AddCommand(newChannelsDefaultCmd())
	return cmd
}

func newChannelsDefaultCmd() *cobra.Command {
	var filePath string
	var maxChannels int
	cmd := &cobra.Command{
		Use:   "default",
		Short: "Print the default channel selection for a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filePath == "" {
				return fmt.Errorf("--file-path is required")
			}
			logger := rootLogger()
			c := newCoreFromEnv(logger)
			defer c.Close()

			if !c.Config.IsAllowedPath(filePath) {
				return fmt.Errorf("path not under any allowed root: %s", filePath)
			}

			channels := c.Channels.SelectDefaultChannels(filePath, maxChannels, 0, 0)
			cmd.Println(strings.Join(channels, ", "))
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file-path", "", "EDF file to select channels from")
	cmd.Flags().IntVar(&maxChannels, "max-channels", 5, "maximum number of channels to select")
	return cmd
}
