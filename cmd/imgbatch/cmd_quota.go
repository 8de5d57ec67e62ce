package main

import (
	"context"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(quotaCmd)
}

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show today's allowance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		q, err := a.session.Quota(context.Background())
		if err != nil {
			return err
		}

		printQuota(cmd.OutOrStdout(), a.session.Actor(), q)
		return nil
	},
}
