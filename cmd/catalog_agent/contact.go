package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-catalog/internal/catalog"
)

func newContactCmd(opts *rootOptions) *cobra.Command {
	var noPatch bool

	cmd := &cobra.Command{
		Use:   "contact <refnr>",
		Short: "Extract the contact details of one job posting",
		Long: `Open the job detail page in a headless browser, solve the challenge if one is shown and
print the extracted contact details as JSON. The result is stored on the catalog entry unless --no-patch is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.newLookupService(ctx)
			if err != nil {
				return err
			}

			lookupFn := svc.Lookup
			if noPatch {
				lookupFn = svc.LookupNoPatch
			}
			res, err := lookupFn(ctx, args[0])
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(map[string]any{
				"refnr":         res.RefNr,
				"kontakt":       res.Contact,
				"kontaktStatus": catalog.StatusFor(res.Contact),
				"challenge":     res.Challenge,
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode contact: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&noPatch, "no-patch", false, "Do not store the result on the catalog entry")
	return cmd
}
