package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vietddude/cogcall/internal/control"
	"github.com/vietddude/cogcall/internal/services/vision"
)

var (
	visionFeatures      []string
	visionMinConfidence float64
)

var analyzeImageCmd = &cobra.Command{
	Use:   "analyze-image <url|path>",
	Short: "Caption, tag, read and detect objects in an image",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := vision.Options{}
		for _, f := range visionFeatures {
			opts.Features = append(opts.Features, vision.Feature(f))
		}

		withApp(func(ctx context.Context, app *control.App) error {
			var (
				res vision.Analysis
				err error
			)
			if src := args[0]; strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
				res, err = app.Vision.AnalyzeURL(ctx, src, opts)
			} else {
				data, readErr := os.ReadFile(src)
				if readErr != nil {
					return readErr
				}
				res, err = app.Vision.AnalyzeImage(ctx, data, opts)
			}
			if err != nil {
				return err
			}
			printAnalysis(res)
			return nil
		})
	},
}

func printAnalysis(res vision.Analysis) {
	fmt.Printf("Image: %dx%d (model %s)\n", res.Metadata.Width, res.Metadata.Height, res.ModelVersion)
	if c := res.Caption(); c != "" {
		fmt.Printf("Caption: %s\n", c)
	}

	if tags := res.Tags(visionMinConfidence); len(tags) > 0 {
		w := newTable(os.Stdout)
		_, _ = fmt.Fprintln(w, "TAG\tCONFIDENCE")
		for _, t := range tags {
			_, _ = fmt.Fprintf(w, "%s\t%.2f\n", t.Name, t.Confidence)
		}
		_ = w.Flush()
	}

	if objects := res.Objects(); len(objects) > 0 {
		fmt.Println("\nObjects:")
		for _, o := range objects {
			name := "object"
			if len(o.Tags) > 0 {
				name = o.Tags[0].Name
			}
			b := o.BoundingBox
			fmt.Printf("  %s at (%d,%d) %dx%d\n", name, b.X, b.Y, b.W, b.H)
		}
	}

	if lines := res.Lines(); len(lines) > 0 {
		fmt.Println("\nText:")
		for _, l := range lines {
			fmt.Println(" ", l)
		}
	}
}

func init() {
	analyzeImageCmd.Flags().StringSliceVar(&visionFeatures, "features", nil, "caption, tags, read, objects (default all)")
	analyzeImageCmd.Flags().Float64Var(&visionMinConfidence, "min-confidence", 0.5, "minimum tag confidence")
	rootCmd.AddCommand(analyzeImageCmd)
}
