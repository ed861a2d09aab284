package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/cogcall/internal/control"
)

var (
	translateTo   []string
	translateFrom string
)

var translateCmd = &cobra.Command{
	Use:   "translate [text...]",
	Short: "Translate text into one or more languages",
	Run: func(cmd *cobra.Command, args []string) {
		runText(args, func(ctx context.Context, app *control.App, text string) error {
			results, err := app.Translator.Translate(ctx, []string{text}, translateTo, translateFrom)
			if err != nil {
				return err
			}

			res := results[0]
			if d := res.DetectedLanguage; d != nil {
				fmt.Printf("Detected: %s (%.2f)\n", d.Language, d.Score)
			}
			w := newTable(os.Stdout)
			_, _ = fmt.Fprintln(w, "TO\tTEXT")
			for _, t := range res.Translations {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", t.To, t.Text)
			}
			return w.Flush()
		})
	},
}

func init() {
	translateCmd.Flags().StringVarP(&inFile, "file", "f", "", "read the text from a file")
	translateCmd.Flags().StringSliceVar(&translateTo, "to", []string{"en"}, "target languages")
	translateCmd.Flags().StringVar(&translateFrom, "from", "", "source language (auto-detected when empty)")
	rootCmd.AddCommand(translateCmd)
}
