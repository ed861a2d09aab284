package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/health"
	"github.com/vietddude/cogcall/internal/infra/storage"
	"github.com/vietddude/cogcall/internal/infra/storage/postgres"
)

var (
	usageSince  time.Duration
	usageKind   string
	usageRecent int
	usageServer string
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show recorded usage and estimated cost",
	Long: `usage aggregates persisted call records per operation kind. With --server
it reads the live snapshot of a running "cogcall serve" instead.`,
	Run: runUsage,
}

func init() {
	usageCmd.Flags().DurationVar(&usageSince, "since", 24*time.Hour, "time window")
	usageCmd.Flags().StringVar(&usageKind, "kind", "", "only this operation kind, e.g. language.sentiment")
	usageCmd.Flags().IntVar(&usageRecent, "recent", 0, "also list this many recent calls")
	usageCmd.Flags().StringVar(&usageServer, "server", "", "base URL of a running server, e.g. http://localhost:8080")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	if usageServer != "" {
		if err := printLiveUsage(ctx, usageServer); err != nil {
			slog.Error("Failed to fetch usage", "server", usageServer, "error", err)
			os.Exit(1)
		}
		return
	}

	if cfg.Database.URL == "" {
		slog.Error("usage needs database.url (or DATABASE_URL), or --server")
		os.Exit(1)
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	repo := postgres.NewCallRecordRepo(db)
	q := storage.RecordQuery{
		Since: time.Now().Add(-usageSince),
		Kind:  domain.OperationKind(usageKind),
		Limit: usageRecent,
	}

	summaries, err := repo.Summarize(ctx, q)
	if err != nil {
		slog.Error("Failed to summarize usage", "error", err)
		os.Exit(1)
	}

	w := newTable(os.Stdout)
	_, _ = fmt.Fprintln(w, "KIND\tREQUESTS\tOK\tFAILED\tVOLUME\tAVG LATENCY\tCOST")
	var total domain.KindSummary
	for _, s := range summaries {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.0fms\t$%.6f\n",
			s.Kind, s.TotalRequests, s.SuccessCount, s.FailureCount, s.TotalVolume, s.AvgElapsedMs, s.TotalCost)
		total.TotalRequests += s.TotalRequests
		total.SuccessCount += s.SuccessCount
		total.FailureCount += s.FailureCount
		total.TotalVolume += s.TotalVolume
		total.TotalCost += s.TotalCost
	}
	_, _ = fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\t%d\t\t$%.6f\n",
		total.TotalRequests, total.SuccessCount, total.FailureCount, total.TotalVolume, total.TotalCost)
	_ = w.Flush()

	if usageRecent <= 0 {
		return
	}
	records, err := repo.List(ctx, q)
	if err != nil {
		slog.Error("Failed to list calls", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	w = newTable(os.Stdout)
	_, _ = fmt.Fprintln(w, "TIME\tKIND\tRESULT\tATTEMPTS\tVOLUME\tELAPSED")
	for _, r := range records {
		result := "ok"
		if !r.Success {
			result = string(r.FailureKind)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%dms\n",
			r.CreatedAt.Local().Format(time.DateTime), r.Kind, result, r.Attempts, r.Volume, r.ElapsedMs)
	}
	_ = w.Flush()
}

func printLiveUsage(ctx context.Context, server string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/usage", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	var report health.UsageReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return fmt.Errorf("failed to decode usage: %w", err)
	}

	u := report.Usage
	fmt.Printf("Since %s\n", u.Since.Local().Format(time.DateTime))
	w := newTable(os.Stdout)
	_, _ = fmt.Fprintln(w, "REQUESTS\tOK\tFAILED\tVOLUME\tSUCCESS RATE\tAVG LATENCY\tCOST")
	_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%.1f%%\t%dms\t$%.6f\n",
		u.TotalRequests, u.SuccessfulRequests, u.FailedRequests, u.TotalVolume,
		report.SuccessRate*100, report.AvgLatencyMs, report.EstimatedCost)
	_ = w.Flush()

	if b := report.Budget; b != nil && b.Limit > 0 {
		fmt.Printf("Daily budget: $%.4f of $%.2f, resets %s\n", b.Spent, b.Limit, b.NextResetAt.Local().Format(time.DateTime))
	}
	return nil
}
