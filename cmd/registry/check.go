package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/registry"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load the directory and list identities and skipped files",
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := registry.ImageFiles(opts.Dir)
		if err != nil {
			return err
		}

		bar := progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("loading known faces"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)

		reg, _, err := newRegistry(opts, func(string) { _ = bar.Add(1) })
		if err != nil {
			return err
		}

		report, err := reg.Reload(cmd.Context())
		_ = bar.Finish()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "IDENTITY\tSOURCE")
		fmt.Fprintln(w, "--------\t------")
		for _, id := range reg.Snapshot().Identities() {
			fmt.Fprintf(w, "%s\t%s\n", id.IdentityID, id.Source)
		}
		_ = w.Flush()

		if len(report.Skipped) > 0 {
			fmt.Fprintln(out)
			w = tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "SKIPPED\tREASON")
			fmt.Fprintln(w, "-------\t------")
			for _, s := range report.Skipped {
				fmt.Fprintf(w, "%s\t%s\n", s.File, s.Reason)
			}
			_ = w.Flush()
		}

		fmt.Fprintf(out, "\n%d identities from %d image files in %dms\n", report.Loaded, report.ImageFiles, report.DurationMs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
