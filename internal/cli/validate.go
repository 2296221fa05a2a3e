package cli

import (
	"fmt"
	"slices"

	"github.com/aaronromeo/mailpulse/internal/config"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and check the configured folders exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if _, _, err := config.S3EnvFromEnv(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), config.Summary(cfg))

			offline, err := cmd.Flags().GetBool("offline")
			if err != nil {
				return err
			}
			if offline {
				return nil
			}

			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			defer sess.close(ctx)

			mailboxes, err := sess.client.ListMailboxes(ctx)
			if err != nil {
				return err
			}
			for _, folder := range []string{cfg.Folders.Sent, cfg.Folders.Received} {
				if !slices.Contains(mailboxes, folder) {
					return fmt.Errorf("folder %q not found on server (available: %v)", folder, mailboxes)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Folders %q and %q found\n", cfg.Folders.Sent, cfg.Folders.Received)
			return nil
		},
	}
	cmd.Flags().Bool("offline", false, "Skip the IMAP connection check")
	return cmd
}
