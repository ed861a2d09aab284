// Package vision wraps Azure AI Vision image analysis 4.0.
package vision

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/rpc"
)

const (
	APIVersion = "2024-02-01"
	// MaxImageSize is the largest accepted image in bytes.
	MaxImageSize = 4 << 20

	analyzePath = "/computervision/imageanalysis:analyze"
)

// Feature is a visual feature to extract.
type Feature string

const (
	FeatureCaption Feature = "caption"
	FeatureTags    Feature = "tags"
	FeatureRead    Feature = "read"
	FeatureObjects Feature = "objects"
	FeaturePeople  Feature = "people"
)

// DefaultFeatures are requested when none are given.
var DefaultFeatures = []Feature{FeatureCaption, FeatureTags, FeatureRead, FeatureObjects}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type Tag struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type Caption struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type Word struct {
	Text            string  `json:"text"`
	BoundingPolygon []Point `json:"boundingPolygon"`
	Confidence      float64 `json:"confidence"`
}

type Line struct {
	Text            string  `json:"text"`
	BoundingPolygon []Point `json:"boundingPolygon"`
	Words           []Word  `json:"words"`
}

type DetectedObject struct {
	BoundingBox BoundingBox `json:"boundingBox"`
	Tags        []Tag       `json:"tags"`
}

// Analysis is the result of one image analysis.
type Analysis struct {
	ModelVersion string `json:"modelVersion"`
	Metadata     struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"metadata"`
	CaptionResult *Caption `json:"captionResult,omitempty"`
	TagsResult    *struct {
		Values []Tag `json:"values"`
	} `json:"tagsResult,omitempty"`
	ReadResult *struct {
		Blocks []struct {
			Lines []Line `json:"lines"`
		} `json:"blocks"`
	} `json:"readResult,omitempty"`
	ObjectsResult *struct {
		Values []DetectedObject `json:"values"`
	} `json:"objectsResult,omitempty"`
}

func (a Analysis) Validate() error {
	if a.ModelVersion == "" {
		return errors.New("missing model version")
	}
	if a.Metadata.Width <= 0 || a.Metadata.Height <= 0 {
		return errors.New("missing image metadata")
	}
	return nil
}

// Caption returns the caption text, empty when not requested.
func (a Analysis) Caption() string {
	if a.CaptionResult == nil {
		return ""
	}
	return a.CaptionResult.Text
}

// Tags returns tags with at least minConfidence.
func (a Analysis) Tags(minConfidence float64) []Tag {
	if a.TagsResult == nil {
		return nil
	}
	var out []Tag
	for _, t := range a.TagsResult.Values {
		if t.Confidence >= minConfidence {
			out = append(out, t)
		}
	}
	return out
}

// Lines returns recognized text lines in reading order.
func (a Analysis) Lines() []string {
	if a.ReadResult == nil {
		return nil
	}
	var out []string
	for _, b := range a.ReadResult.Blocks {
		for _, l := range b.Lines {
			out = append(out, l.Text)
		}
	}
	return out
}

// Objects returns detected objects.
func (a Analysis) Objects() []DetectedObject {
	if a.ObjectsResult == nil {
		return nil
	}
	return a.ObjectsResult.Values
}

// Options configure an analysis.
type Options struct {
	Features []Feature
	// Language of captions and tags (default "en").
	Language             string
	GenderNeutralCaption bool
}

// Service calls Azure AI Vision through a resilient client.
// The client must route the "vision" service.
type Service struct {
	client *rpc.Client
}

func New(client *rpc.Client) *Service {
	return &Service{client: client}
}

// AnalyzeURL analyzes a publicly reachable image.
func (s *Service) AnalyzeURL(ctx context.Context, imageURL string, opts Options) (Analysis, error) {
	if _, err := url.ParseRequestURI(imageURL); err != nil {
		return Analysis{}, domain.WrapFailure(domain.FailureInvalidInput, err, "image url")
	}
	op := rpc.NewOperation(domain.KindImageAnalysis, imageURL, analyzePath, map[string]string{"url": imageURL})
	op.Request.Query = opts.query()
	op.Cacheable = true
	return rpc.Do[Analysis](ctx, s.client, op)
}

// AnalyzeImage uploads image bytes. Images over MaxImageSize are rejected locally.
func (s *Service) AnalyzeImage(ctx context.Context, image []byte, opts Options) (Analysis, error) {
	contentType := "application/octet-stream"
	if len(image) > 0 {
		if ct := http.DetectContentType(image); strings.HasPrefix(ct, "image/") {
			contentType = ct
		}
	}
	op := rpc.NewBinaryOperation(domain.KindImageAnalysis, image, contentType, analyzePath, opts.query())
	op.Override.MaxPayloadSize = MaxImageSize
	return rpc.Do[Analysis](ctx, s.client, op)
}

func (o Options) query() url.Values {
	features := o.Features
	if len(features) == 0 {
		features = DefaultFeatures
	}
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = string(f)
	}

	lang := o.Language
	if lang == "" {
		lang = "en"
	}

	q := url.Values{}
	q.Set("features", strings.Join(names, ","))
	q.Set("language", lang)
	if o.GenderNeutralCaption {
		q.Set("gender-neutral-caption", "true")
	}
	return q
}
