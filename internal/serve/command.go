package serve

import (
	"context"
	"net"
	"os"
	"os/signal"

	"capsift/internal/command"
	"capsift/pkg/pipeline"
	"capsift/pkg/tlv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cmd = &cobra.Command{
	Use:   "serve",
	Short: "Decode records forwarded by remote dump --tcp",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			return errors.New("missing server address")
		}

		cfg := command.Config()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return errors.Wrap(err, "net.Listen")
		}
		logrus.WithField("addr", lis.Addr()).Info("Listen on")

		go func() {
			<-ctx.Done()
			lis.Close()
		}()

		opts := []pipeline.ScanOpt{pipeline.WithIPv4(cfg.Pipeline.IPv4), pipeline.WithStrict(cfg.Pipeline.Strict)}
		for {
			conn, err := lis.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "listener.Accept")
			}
			go handleConn(ctx, conn, logrus.WithField("addr", conn.RemoteAddr()), opts...)
		}
	},
}

// handleConn logs one line per forwarded record until the peer disconnects.
func handleConn(ctx context.Context, conn net.Conn, l *logrus.Entry, opts ...pipeline.ScanOpt) (pipeline.Stats, error) {
	defer conn.Close()

	l.Info("New conn")

	opts = append(opts, pipeline.WithLogger(l))
	stats, err := pipeline.Scan(ctx, tlv.NewRecordReader(conn), func(r pipeline.Row) error {
		e := l.WithField("index", r.Index).
			WithField("ethtype", r.EthType).
			WithField("src", r.Source).
			WithField("dst", r.Target).
			WithField("length", r.Length)
		if r.IPv4 != nil {
			e = e.WithField("ipv4", r.IPv4.Source+" > "+r.IPv4.Target).
				WithField("proto", r.IPv4.Protocol).
				WithField("checksum_valid", r.IPv4.ChecksumValid)
		}
		e.Info("Recv record")
		return nil
	}, opts...)

	l = l.WithField("records", stats.Records).WithField("dropped", stats.Dropped)
	if err != nil {
		l.WithError(err).Error("Fail to decode stream")
		return stats, err
	}
	l.Info("Conn closed")
	return stats, nil
}

func init() {
	cmd.Flags().String("addr", "", "address to listen on")
	command.Register(cmd)
}
