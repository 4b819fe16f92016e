package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ryosukesatoh/arxiv-digest/internal/config"
	"github.com/ryosukesatoh/arxiv-digest/internal/store"
)

func newHistoryCmd(opts *runOptions, stdout io.Writer) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived digest runs",
		Long: `history lists the runs recorded in the SQLite archive configured under
store.sqlite_path. With --run it prints the URLs selected in that run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.Store.SQLitePath == "" {
				return errors.New("store.sqlite_path is not configured")
			}

			db, err := store.OpenSQLite(cfg.Store.SQLitePath)
			if err != nil {
				return err
			}
			defer db.Close()

			if runID != "" {
				urls, err := db.SelectedURLs(cmd.Context(), runID)
				if err != nil {
					return err
				}
				for _, u := range urls {
					fmt.Fprintln(stdout, u)
				}
				return nil
			}

			runs, err := db.Runs(cmd.Context())
			if err != nil {
				return err
			}
			return printRuns(stdout, runs)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "print the selected URLs of one run")
	return cmd
}

func printRuns(w io.Writer, runs []store.RunSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tFROM\tUNTIL\tTOTAL\tSELECTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", r.ID, r.From, r.Until, r.Total, r.Selected)
	}
	return tw.Flush()
}
