package command

import (
	"io"

	"capsift/internal/config"
	"capsift/internal/logging"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cfg       = config.Default()
	logCloser io.Closer
)

var root = cobra.Command{
	Use:          "capsift",
	Short:        "Ethernet/IPv4 capture file analysis in Go",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		verbose, _ := cmd.Flags().GetBool("verbose")
		logFile, _ := cmd.Flags().GetString("log-file")

		c, err := config.Load(path)
		if err != nil {
			return errors.Wrap(err, "config.Load")
		}
		if verbose {
			c.Log.Level = "debug"
		}
		if logFile != "" {
			c.Log.File.Path = logFile
		}

		closer, err := logging.Setup(c.Log)
		if err != nil {
			return errors.Wrap(err, "logging.Setup")
		}
		cfg, logCloser = c, closer
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func init() {
	root.PersistentFlags().String("config", "", "YAML config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	root.PersistentFlags().String("log-file", "", "also write logs to a rotated file")
}

func Register(sub *cobra.Command) {
	root.AddCommand(sub)
}

// Config is the configuration loaded for the running command.
func Config() *config.Config {
	return cfg
}

func Execute() error {
	return root.Execute()
}
