package analyze

import (
	"os"
	"os/signal"

	"capsift/internal/command"
	"capsift/pkg/pipeline"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cmd = &cobra.Command{
	Use:   "analyze",
	Short: "Decode a capture file and print one row per record",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("read")
		noIPv4, _ := cmd.Flags().GetBool("no-ipv4")
		strict, _ := cmd.Flags().GetBool("strict")
		output, _ := cmd.Flags().GetString("output")
		maxRecordLen, _ := cmd.Flags().GetUint32("max-record-len")

		if file == "" {
			return errors.New("missing capture file")
		}

		render, ok := renderers[output]
		if !ok {
			return errors.Errorf("unknown output format %q", output)
		}

		cfg := command.Config()
		if !cmd.Flags().Changed("strict") {
			strict = cfg.Pipeline.Strict
		}
		if maxRecordLen == 0 {
			maxRecordLen = cfg.Reader.MaxRecordLen
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		logger := logrus.WithField("file", file)
		res, err := pipeline.AnalyzeFile(ctx, file,
			pipeline.WithIPv4(cfg.Pipeline.IPv4 && !noIPv4),
			pipeline.WithStrict(strict),
			pipeline.WithMaxRecordLen(maxRecordLen),
			pipeline.WithBufferSize(cfg.Reader.BufferSize),
			pipeline.WithLogger(logger),
		)
		if res == nil {
			return err
		}
		if err != nil {
			logger.WithError(err).WithField("records", res.Stats.Records).Warn("Analysis stopped early")
		}

		if rerr := render(cmd.OutOrStdout(), res); rerr != nil {
			return errors.Wrap(rerr, "render")
		}
		return err
	},
}

func init() {
	cmd.Flags().StringP("read", "r", "", "capture file to analyze")
	cmd.Flags().Bool("no-ipv4", false, "decode the link layer only")
	cmd.Flags().Bool("strict", false, "fail on the first record that is not an Ethernet frame")
	cmd.Flags().StringP("output", "o", "table", "output format: table, json or yaml")
	cmd.Flags().Uint32("max-record-len", 0, "largest accepted record (default from config)")
	command.Register(cmd)
}
