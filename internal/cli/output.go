package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/rpc"
)

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
}

// printUsage writes the per-kind usage of this run and its estimated cost.
func printUsage(out io.Writer, client *rpc.Client) {
	stats := client.Snapshot()
	if stats.TotalRequests == 0 {
		return
	}

	_, _ = fmt.Fprintln(out)
	w := newTable(out)
	_, _ = fmt.Fprintln(w, "KIND\tREQUESTS\tOK\tFAILED\tVOLUME\tAVG LATENCY")

	kinds := make([]string, 0, len(stats.ByKind))
	for k := range stats.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	for _, k := range kinds {
		u := stats.ByKind[domain.OperationKind(k)]
		var avg int64
		if u.TotalRequests > 0 {
			avg = u.TotalElapsed.Milliseconds() / u.TotalRequests
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%dms\n",
			k, u.TotalRequests, u.SuccessfulRequests, u.FailedRequests, u.TotalVolume, avg)
	}
	_, _ = fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\t%d\t%dms\n",
		stats.TotalRequests, stats.SuccessfulRequests, stats.FailedRequests,
		stats.TotalVolume, stats.AverageLatency().Milliseconds())
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "Success rate: %.1f%%  Estimated cost: $%.6f\n",
		stats.SuccessRate()*100, client.EstimatedCost())

	if len(stats.Failures) > 0 {
		_, _ = fmt.Fprint(out, "Failures:")
		for _, f := range domain.AllFailureKinds {
			if n := stats.Failures[f]; n > 0 {
				_, _ = fmt.Fprintf(out, " %s=%d", f, n)
			}
		}
		_, _ = fmt.Fprintln(out)
	}

	if st, ok := client.BudgetStatus(); ok && st.Limit > 0 {
		_, _ = fmt.Fprintf(out, "Daily budget: $%.4f of $%.2f (%.1f%%)\n", st.Spent, st.Limit, st.UsagePercentage)
	}
}
