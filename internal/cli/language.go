package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vietddude/cogcall/internal/control"
	"github.com/vietddude/cogcall/internal/services/language"
)

var (
	summaryMode      string
	summarySentences int
	summaryLength    string
	summaryAspects   []string
)

var sentimentCmd = &cobra.Command{
	Use:   "sentiment [text...]",
	Short: "Analyze sentiment with opinion mining",
	Run: func(cmd *cobra.Command, args []string) {
		runText(args, func(ctx context.Context, app *control.App, text string) error {
			res, err := app.Language.AnalyzeSentiment(ctx, text)
			if err != nil {
				return err
			}

			fmt.Printf("Sentiment: %s (positive %.2f, neutral %.2f, negative %.2f)\n",
				res.Sentiment, res.ConfidenceScores.Positive, res.ConfidenceScores.Neutral, res.ConfidenceScores.Negative)

			w := newTable(os.Stdout)
			_, _ = fmt.Fprintln(w, "SENTENCE\tSENTIMENT\tPOS\tNEG")
			for _, s := range res.Sentences {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\n", s.Text, s.Sentiment, s.ConfidenceScores.Positive, s.ConfidenceScores.Negative)
			}
			_ = w.Flush()

			if opinions := res.Opinions(); len(opinions) > 0 {
				fmt.Println("\nOpinions:")
				for _, op := range opinions {
					var parts []string
					for _, a := range op.Assessments {
						text := a.Text
						if a.IsNegated {
							text = "not " + text
						}
						parts = append(parts, text)
					}
					fmt.Printf("  %s (%s): %s\n", op.Target.Text, op.Target.Sentiment, strings.Join(parts, ", "))
				}
			}
			return nil
		})
	},
}

var keyPhrasesCmd = &cobra.Command{
	Use:   "keyphrases [text...]",
	Short: "Extract key phrases",
	Run: func(cmd *cobra.Command, args []string) {
		runText(args, func(ctx context.Context, app *control.App, text string) error {
			res, err := app.Language.ExtractKeyPhrases(ctx, text)
			if err != nil {
				return err
			}
			for _, p := range res.KeyPhrases {
				fmt.Println("-", p)
			}
			return nil
		})
	},
}

var detectLanguageCmd = &cobra.Command{
	Use:   "detect-language [text...]",
	Short: "Detect the language of a text",
	Run: func(cmd *cobra.Command, args []string) {
		runText(args, func(ctx context.Context, app *control.App, text string) error {
			res, err := app.Language.DetectLanguage(ctx, text)
			if err != nil {
				return err
			}
			d := res.DetectedLanguage
			fmt.Printf("%s (%s) confidence %.2f\n", d.Name, d.ISO6391Name, d.ConfidenceScore)
			return nil
		})
	},
}

var entitiesCmd = &cobra.Command{
	Use:   "entities [text...]",
	Short: "Recognize named entities",
	Run: func(cmd *cobra.Command, args []string) {
		runText(args, func(ctx context.Context, app *control.App, text string) error {
			res, err := app.Language.RecognizeEntities(ctx, text)
			if err != nil {
				return err
			}
			w := newTable(os.Stdout)
			_, _ = fmt.Fprintln(w, "ENTITY\tCATEGORY\tSUBCATEGORY\tCONFIDENCE")
			for _, e := range res.Entities {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\n", e.Text, e.Category, e.Subcategory, e.ConfidenceScore)
			}
			return w.Flush()
		})
	},
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize [text...]",
	Short: "Summarize a document (extractive or abstractive)",
	Run: func(cmd *cobra.Command, args []string) {
		runText(args, func(ctx context.Context, app *control.App, text string) error {
			sum, err := app.Language.Summarize(ctx, text, language.SummaryOptions{
				Mode:          language.SummaryMode(summaryMode),
				SentenceCount: summarySentences,
				Length:        summaryLength,
			})
			if err != nil {
				return err
			}
			for i, s := range sum.Sentences {
				fmt.Printf("%d. %s\n", i+1, s)
			}
			return nil
		})
	},
}

var summarizeConversationCmd = &cobra.Command{
	Use:   "summarize-conversation [transcript...]",
	Short: "Summarize a conversation transcript",
	Long: `The transcript has one turn per line, optionally prefixed with the speaker
("Agent: How can I help?"). Speakers named agent get the Agent role; everyone
else is a Customer.`,
	Run: func(cmd *cobra.Command, args []string) {
		runText(args, func(ctx context.Context, app *control.App, text string) error {
			sum, err := app.Language.SummarizeConversation(ctx, parseTranscript(text), summaryAspects...)
			if err != nil {
				return err
			}
			w := newTable(os.Stdout)
			_, _ = fmt.Fprintln(w, "ASPECT	SUMMARY")
			for _, row := range [][2]string{
				{language.AspectIssue, sum.Issue},
				{language.AspectResolution, sum.Resolution},
				{language.AspectRecap, sum.Recap},
			} {
				if row[1] != "" {
					_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
				}
			}
			for _, t := range sum.ChapterTitles {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", language.AspectChapterTitle, t)
			}
			for _, n := range sum.Narratives {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", language.AspectNarrative, n)
			}
			return w.Flush()
		})
	},
}

// parseTranscript splits a transcript into conversation items.
func parseTranscript(text string) []language.ConversationItem {
	var items []language.ConversationItem
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		item := language.ConversationItem{Text: line}
		if speaker, said, ok := strings.Cut(line, ":"); ok && speaker != "" && !strings.ContainsAny(speaker, " \t") {
			item.Text = strings.TrimSpace(said)
			item.ParticipantID = speaker
			if strings.EqualFold(speaker, "agent") {
				item.Role = "Agent"
			}
		}
		items = append(items, item)
	}
	return items
}

func init() {
	for _, cmd := range []*cobra.Command{sentimentCmd, keyPhrasesCmd, detectLanguageCmd, entitiesCmd, summarizeCmd, summarizeConversationCmd} {
		cmd.Flags().StringVarP(&inFile, "file", "f", "", "read the text from a file")
		rootCmd.AddCommand(cmd)
	}
	summarizeCmd.Flags().StringVar(&summaryMode, "mode", string(language.Extractive), "extractive or abstractive")
	summarizeCmd.Flags().IntVar(&summarySentences, "sentences", 3, "extractive sentence count (1-20)")
	summarizeCmd.Flags().StringVar(&summaryLength, "length", "medium", "abstractive length: short, medium or long")
	summarizeConversationCmd.Flags().StringSliceVar(&summaryAspects, "aspects", language.DefaultConversationAspects,
		"issue, resolution, recap, chapterTitle or narrative")
}

// runText reads the input text and runs fn within an App.
func runText(args []string, fn func(ctx context.Context, app *control.App, text string) error) {
	text, err := readInput(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read input: %v\n", err)
		os.Exit(1)
	}
	withApp(func(ctx context.Context, app *control.App) error {
		return fn(ctx, app, text)
	})
}
