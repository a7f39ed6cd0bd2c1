package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-catalog/internal/server"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var operator string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the sync endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireJWT(); err != nil {
				return err
			}

			token, err := server.NewJWTService(&cfg.JWT).GenerateToken(operator)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&operator, "operator", "", "Operator name stored in the token")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}
