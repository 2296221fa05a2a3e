package cli

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aaronromeo/mailpulse/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reports over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.close(commandContext(cmd))
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr, err := cmd.Flags().GetString("addr")
			if err != nil {
				return err
			}
			if strings.TrimSpace(addr) == "" {
				addr = sess.cfg.Server.Addr
			}

			srv, err := server.New(sess.analyzer,
				server.WithLogger(sess.logger),
				server.WithTop(sess.cfg.Report.Top),
			)
			if err != nil {
				return err
			}
			return srv.Run(ctx, addr)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default: server.addr from config)")
	return cmd
}
