package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vietddude/cogcall/internal/batch"
	"github.com/vietddude/cogcall/internal/control"
	"github.com/vietddude/cogcall/internal/core/domain"
)

var (
	batchOp          string
	batchConcurrency int
	batchRate        float64
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run one operation over every line of the input",
	Long: `batch reads one text per line from --file or stdin and runs the chosen
operation over all of them with bounded concurrency. A failed line does not
stop the others.`,
	Run: func(cmd *cobra.Command, args []string) {
		input, err := readInput(nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read input: %v\n", err)
			os.Exit(1)
		}
		var lines []string
		for _, l := range strings.Split(input, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				lines = append(lines, l)
			}
		}

		withApp(func(ctx context.Context, app *control.App) error {
			fn, err := batchFunc(app, batchOp)
			if err != nil {
				return err
			}

			runner := app.Batch
			if batchConcurrency > 0 || batchRate > 0 {
				runner = batch.NewRunner(batch.Config{Concurrency: batchConcurrency, RatePerSecond: batchRate})
			}

			results := batch.Run(ctx, runner, lines, fn)
			printBatch(lines, results)
			return ctx.Err()
		})
	},
}

// batchFunc maps an operation name to a function rendering its result as one line.
func batchFunc(app *control.App, op string) (func(context.Context, string) (string, error), error) {
	switch op {
	case "sentiment":
		return func(ctx context.Context, text string) (string, error) {
			res, err := app.Language.AnalyzeSentiment(ctx, text)
			if err != nil {
				return "", err
			}
			return res.Sentiment, nil
		}, nil
	case "keyphrases":
		return func(ctx context.Context, text string) (string, error) {
			res, err := app.Language.ExtractKeyPhrases(ctx, text)
			if err != nil {
				return "", err
			}
			return strings.Join(res.KeyPhrases, ", "), nil
		}, nil
	case "detect-language":
		return func(ctx context.Context, text string) (string, error) {
			res, err := app.Language.DetectLanguage(ctx, text)
			if err != nil {
				return "", err
			}
			return res.DetectedLanguage.ISO6391Name, nil
		}, nil
	case "entities":
		return func(ctx context.Context, text string) (string, error) {
			res, err := app.Language.RecognizeEntities(ctx, text)
			if err != nil {
				return "", err
			}
			names := make([]string, len(res.Entities))
			for i, e := range res.Entities {
				names[i] = e.Text + "/" + e.Category
			}
			return strings.Join(names, ", "), nil
		}, nil
	case "translate":
		return func(ctx context.Context, text string) (string, error) {
			res, err := app.Translator.Translate(ctx, []string{text}, translateTo, translateFrom)
			if err != nil {
				return "", err
			}
			return res[0].Translations[0].Text, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown batch operation %q", op)
	}
}

func printBatch(lines []string, results []batch.Result[string]) {
	w := newTable(os.Stdout)
	_, _ = fmt.Fprintln(w, "#\tINPUT\tRESULT\tELAPSED")
	for _, res := range results {
		out := res.Value
		if res.Err != nil {
			out = "error: " + res.Err.Error()
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%dms\n", res.Index+1, truncate(lines[res.Index], 40), out, res.Elapsed.Milliseconds())
	}
	_ = w.Flush()

	sum := batch.Summarize(results)
	fmt.Printf("\n%d items: %d succeeded, %d failed\n", sum.Total, sum.Succeeded, sum.Failed)
	if len(sum.ByFailure) > 0 {
		kinds := make([]string, 0, len(sum.ByFailure))
		for k := range sum.ByFailure {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Printf("  %s: %d\n", k, sum.ByFailure[domain.FailureKind(k)])
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	batchCmd.Flags().StringVarP(&inFile, "file", "f", "", "read inputs from a file, one per line")
	batchCmd.Flags().StringVar(&batchOp, "op", "sentiment", "sentiment, keyphrases, detect-language, entities or translate")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "items in flight (default from config)")
	batchCmd.Flags().Float64Var(&batchRate, "rate", 0, "maximum items started per second")
	batchCmd.Flags().StringSliceVar(&translateTo, "to", []string{"en"}, "target languages for translate")
	batchCmd.Flags().StringVar(&translateFrom, "from", "", "source language for translate")
	rootCmd.AddCommand(batchCmd)
}
