package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"weather-coef/internal/models"
)

func (a *app) historyCmd() *cobra.Command {
	var (
		device string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history --device <id>",
		Short: "Show the latest stored predictions for a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be at least 1, got %d", limit)
			}

			db, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := db.RecentPredictions(cmd.Context(), device, limit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "Device ID")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of predictions to show")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}

func printHistory(out io.Writer, records []models.PredictionRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(out, "no predictions")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tMODEL\tTEMPERATURE\tHUMIDITY")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\n", r.Timestamp.UTC().Format(timeLayout), r.ModelID, r.Temperature, r.Humidity)
	}
	return w.Flush()
}
