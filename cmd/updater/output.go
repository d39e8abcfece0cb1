package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/aristath/metrics-updater/internal/domain"
	"github.com/aristath/metrics-updater/internal/modules/metrics"
)

func printReport(w io.Writer, report *metrics.CycleReport, asJSON bool) error {
	if asJSON {
		return writeJSON(w, report)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", report.RunID)
	fmt.Fprintf(tw, "Outcome:\t%s\n", report.Outcome)
	fmt.Fprintf(tw, "Duration:\t%s\n", report.Duration().Round(time.Millisecond))
	fmt.Fprintf(tw, "Candidates:\t%d\n", report.Candidates)
	fmt.Fprintf(tw, "Batches:\t%d\n", report.Batches)
	fmt.Fprintf(tw, "Updated:\t%d\n", report.Successes)
	fmt.Fprintf(tw, "Failed:\t%d\n", report.Failures)
	fmt.Fprintf(tw, "Blacklisted:\t%d\n", report.Blacklisted)
	if report.RateLimitedTicker != "" {
		fmt.Fprintf(tw, "Rate limited at:\t%s (%d unprocessed)\n", report.RateLimitedTicker, report.Unprocessed)
	}
	if report.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", report.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(report.FailureDetails) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tROW\tFAILURES\tCLASS\tERROR")
	for _, f := range report.FailureDetails {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", f.Ticker, f.RowIndex, f.NextFailureCount(), f.Class, f.Error)
	}
	return tw.Flush()
}

func printCandidates(w io.Writer, candidates []domain.Candidate, asJSON bool) error {
	if asJSON {
		if candidates == nil {
			candidates = []domain.Candidate{}
		}
		return writeJSON(w, candidates)
	}

	if len(candidates) == 0 {
		fmt.Fprintln(w, "No stocks need updating")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tROW\tFAILURES")
	for _, c := range candidates {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", c.Ticker, c.RowIndex, c.Failures)
	}
	return tw.Flush()
}
