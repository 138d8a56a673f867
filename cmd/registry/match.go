package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/extractor"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/recognition"
)

var probePath string

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Identify every face in a probe image against the directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if probePath == "" {
			return fmt.Errorf("--image is required")
		}

		data, err := os.ReadFile(probePath)
		if err != nil {
			return fmt.Errorf("read probe image: %w", err)
		}
		img, err := extractor.Decode(data)
		if err != nil {
			return fmt.Errorf("decode probe image: %w", err)
		}

		reg, ex, err := newRegistry(opts, nil)
		if err != nil {
			return err
		}
		if _, err := reg.Reload(cmd.Context()); err != nil {
			return err
		}

		pipeline := recognition.NewPipeline(ex, reg, nil, opts.logger())
		results, err := pipeline.Identify(cmd.Context(), img)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, "No faces detected.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "IDENTITY\tCONFIDENCE\tDISTANCE\tBOX")
		for _, r := range results {
			distance := "-"
			if r.HasDistance() {
				distance = fmt.Sprintf("%.4f", r.Distance)
			}
			fmt.Fprintf(w, "%s\t%.1f%%\t%s\t%d,%d %dx%d\n",
				r.IdentityID, r.Confidence, distance, r.Box.X, r.Box.Y, r.Box.Width, r.Box.Height)
		}
		return w.Flush()
	},
}

func init() {
	matchCmd.Flags().StringVar(&probePath, "image", "", "Probe image path")
	rootCmd.AddCommand(matchCmd)
}
