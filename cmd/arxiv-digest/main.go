package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ryosukesatoh/arxiv-digest/internal/report"
)

// version is set at build time via ldflags.
var version = "dev"

func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &runOptions{}

	root := &cobra.Command{
		Use:   "arxiv-digest",
		Short: "Harvest new arXiv submissions and mail the relevant ones",
		Long: `arxiv-digest harvests arXiv metadata for a date range and a set of categories
through the OAI-PMH interface, keeps the records matching keywords.txt or
keyauthors.txt, and delivers a digest to stdout, by e-mail or on a web page.

Without a schedule in the config file it runs once and exits. With a cron
schedule it keeps running and harvests the current day on every tick.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd.Context(), opts, stdout)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to config file")
	root.Flags().StringVar(&opts.from, "from", "", "first day of the harvest window (YYYY-MM-DD, default today)")
	root.Flags().StringVar(&opts.until, "until", "", "last day of the harvest window (YYYY-MM-DD, default --from)")
	root.Flags().BoolVar(&opts.once, "once", false, "run the pipeline once and exit even if a schedule is configured")

	root.AddCommand(newHistoryCmd(opts, stdout))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "arxiv-digest %s\n", version)
		},
	})
	return root
}

// exitCode reports err on stderr and maps it to the process status.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, report.ErrNoSubmissions) {
		fmt.Fprintln(stderr, "No arXiv submissions for selected timespan!")
		return 1
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func main() {
	os.Exit(exitCode(newRootCmd(os.Stdout).Execute(), os.Stderr))
}
