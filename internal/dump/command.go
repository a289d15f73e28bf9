package dump

import (
	"context"
	"os"
	"os/signal"

	"capsift/internal/command"
	"capsift/pkg/capture"
	"capsift/pkg/packet"
	"capsift/pkg/pcap"
	"capsift/pkg/pipeline"
	"capsift/pkg/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cmd = &cobra.Command{
	Use:   "dump",
	Short: "Print, save or forward records from a capture file or interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("read")
		iface, _ := cmd.Flags().GetString("iface")
		tcp, _ := cmd.Flags().GetString("tcp")
		out, _ := cmd.Flags().GetString("file")
		tun, _ := cmd.Flags().GetString("tun")
		noStdout, _ := cmd.Flags().GetBool("no-stdout")
		promisc, _ := cmd.Flags().GetBool("promisc")

		if (file == "") == (iface == "") {
			return errors.New("exactly one of --read and --iface is required")
		}

		cfg := command.Config()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var (
			src     pipeline.Source
			snapLen uint32
			serveCh = make(chan error, 1)
		)
		if file != "" {
			r, err := pcap.Open(file, pcap.WithMaxRecordLen(cfg.Reader.MaxRecordLen), pcap.WithBufferSize(cfg.Reader.BufferSize))
			if err != nil {
				return err
			}
			defer r.Close()
			src, snapLen = r, r.Header().SnapLen
			serveCh <- nil
		} else {
			c, err := capture.NewCaptureByIfaceName(iface,
				capture.WithCapturePromisc(promisc),
				capture.WithCaptureReadErrorHandle(func(err error) {
					logrus.WithField("iface", iface).WithError(err).Warn("Fail to read")
				}))
			if err != nil {
				return err
			}
			defer func() {
				c.Close()
				logrus.WithField("dropped", c.Dropped()).Debug("Capture closed")
			}()
			go func() { serveCh <- c.Serve(ctx) }()
			src, snapLen = c, uint32(c.SnapLen())
		}

		var writerlist []DumpWriter
		defer func() {
			for _, w := range writerlist {
				if err := w.Close(); err != nil {
					logrus.WithField("type", w.Type()).WithError(err).Warn("Fail to close")
				}
			}
		}()

		if tcp != "" {
			tcpW, err := NewTCPWriter(tcp,
				utils.WithTxLoopQueueLen(cfg.Forward.QueueLen),
				utils.WithTxLoopHealthCheckDur(cfg.Forward.RedialInterval))
			if err != nil {
				return err
			}
			logrus.WithField("addr", tcp).Info("Connected")
			writerlist = append(writerlist, tcpW)
		}

		if out != "" {
			fileW, err := NewFileWriter(out, snapLen)
			if err != nil {
				return err
			}
			writerlist = append(writerlist, fileW)
		}

		if tun != "" {
			tunW, err := NewTunWriter(tun)
			if err != nil {
				return err
			}
			writerlist = append(writerlist, tunW)
		}

		if !noStdout {
			var opts []packet.DecodeOpt
			if !cfg.Pipeline.IPv4 {
				opts = append(opts, packet.WithoutIPv4())
			}
			writerlist = append(writerlist, NewStdoutWriter(cmd.OutOrStdout(), opts...))
		}

		n, err := dumpRecords(ctx, src, writerlist)
		logrus.WithField("records", n).Debug("Dump finished")
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		err = <-serveCh
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	cmd.Flags().StringP("read", "r", "", "capture file to read records from")
	cmd.Flags().StringP("iface", "i", "", "network interface to capture from")
	cmd.Flags().StringP("file", "w", "", "save records to a local pcap file")
	cmd.Flags().String("tcp", "", "send records to a remote capsift serve via TCP")
	cmd.Flags().String("tun", "", "write IPv4 datagrams to a TUN device")
	cmd.Flags().Bool("no-stdout", false, "disable writing to stdout")
	cmd.Flags().Bool("promisc", false, "put the interface into promiscuous mode")
	command.Register(cmd)
}
