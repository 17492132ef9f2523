package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"deploy-reconciler/pkg/config"
	"deploy-reconciler/pkg/journal"
)

var journalLimit int

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show the most recent delivered reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cfg.Journal.Path == "" {
			return errors.New("journal.path is not configured")
		}
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()
		rows, err := j.Recent(cmd.Context(), journalLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tDELIVERY\tTASK\tKIND\tOUTCOME\tDUP\tDETAIL")
		for _, e := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
				e.At.Format(time.RFC3339), e.DeliveryID, e.TaskUUID, e.Kind, e.Outcome, e.Duplicate, e.Detail)
		}
		return w.Flush()
	},
}

func init() {
	journalCmd.Flags().IntVar(&journalLimit, "limit", 20, "number of rows")
}
