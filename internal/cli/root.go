package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/soyeahso/harvestagent/internal/config"
	"github.com/soyeahso/harvestagent/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger

	// console is where command loggers write; nil means pretty stderr.
	console io.Writer
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Metadata harvesting agent",
		Long: "The agent harvests metadata records from remote datasources and commits\n" +
			"them to metadata repositories, as configured by harvesters in the CMS.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(console, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.agent/config/agent.ini)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newInvokeCmd())
	cmd.AddCommand(newRunDueCmd())
	cmd.AddCommand(newAPICmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newHarvestersCmd())
	cmd.AddCommand(newRecordsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
