package language

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DocumentError is a per-document failure reported inside a 200 response.
type DocumentError struct {
	ID    string `json:"id"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Warning is a non-fatal note attached to a document.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// analyzeResponse is the envelope of every :analyze-text result.
type analyzeResponse[T any] struct {
	Kind    string `json:"kind"`
	Results struct {
		Documents    []T             `json:"documents"`
		Errors       []DocumentError `json:"errors"`
		ModelVersion string          `json:"modelVersion"`
	} `json:"results"`
}

func (r analyzeResponse[T]) Validate() error {
	if r.Kind == "" {
		return errors.New("missing result kind")
	}
	if len(r.Results.Documents)+len(r.Results.Errors) == 0 {
		return errors.New("no documents or errors in result")
	}
	for i, doc := range r.Results.Documents {
		if v, ok := any(doc).(interface{ validate() error }); ok {
			if err := v.validate(); err != nil {
				return fmt.Errorf("document %d: %w", i, err)
			}
		}
	}
	return nil
}

// ConfidenceScores are per-label probabilities. Neutral is absent on targets.
type ConfidenceScores struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// SentimentResult is the sentiment of one document with opinion mining.
type SentimentResult struct {
	ID               string           `json:"id"`
	Sentiment        string           `json:"sentiment"`
	ConfidenceScores ConfidenceScores `json:"confidenceScores"`
	Sentences        []Sentence       `json:"sentences"`
	Warnings         []Warning        `json:"warnings"`
}

type Sentence struct {
	Text             string           `json:"text"`
	Sentiment        string           `json:"sentiment"`
	ConfidenceScores ConfidenceScores `json:"confidenceScores"`
	Offset           int              `json:"offset"`
	Length           int              `json:"length"`
	Targets          []Target         `json:"targets"`
	Assessments      []Assessment     `json:"assessments"`
}

// Target is an aspect of the text an opinion is about.
type Target struct {
	Text             string           `json:"text"`
	Sentiment        string           `json:"sentiment"`
	ConfidenceScores ConfidenceScores `json:"confidenceScores"`
	Offset           int              `json:"offset"`
	Length           int              `json:"length"`
	Relations        []Relation       `json:"relations"`
}

// Relation points from a target to an assessment by JSON pointer.
type Relation struct {
	RelationType string `json:"relationType"`
	Ref          string `json:"ref"`
}

type Assessment struct {
	Text             string           `json:"text"`
	Sentiment        string           `json:"sentiment"`
	ConfidenceScores ConfidenceScores `json:"confidenceScores"`
	Offset           int              `json:"offset"`
	Length           int              `json:"length"`
	IsNegated        bool             `json:"isNegated"`
}

// Opinion pairs a target with the assessments that refer to it.
type Opinion struct {
	Target      Target
	Assessments []Assessment
}

func (r SentimentResult) validate() error {
	switch r.Sentiment {
	case "positive", "neutral", "negative", "mixed":
		return nil
	default:
		return fmt.Errorf("unexpected sentiment %q", r.Sentiment)
	}
}

// Opinions resolves target relations within each sentence.
func (r SentimentResult) Opinions() []Opinion {
	var out []Opinion
	for _, s := range r.Sentences {
		for _, t := range s.Targets {
			op := Opinion{Target: t}
			for _, rel := range t.Relations {
				if rel.RelationType != "assessment" {
					continue
				}
				if i, ok := refIndex(rel.Ref); ok && i < len(s.Assessments) {
					op.Assessments = append(op.Assessments, s.Assessments[i])
				}
			}
			out = append(out, op)
		}
	}
	return out
}

// refIndex returns the trailing index of "#/documents/0/sentences/1/assessments/2".
func refIndex(ref string) (int, bool) {
	i := strings.LastIndexByte(ref, '/')
	if i < 0 || !strings.Contains(ref, "/assessments/") {
		return 0, false
	}
	n, err := strconv.Atoi(ref[i+1:])
	return n, err == nil
}

// KeyPhraseResult lists the key phrases of one document.
type KeyPhraseResult struct {
	ID         string    `json:"id"`
	KeyPhrases []string  `json:"keyPhrases"`
	Warnings   []Warning `json:"warnings"`
}

// DetectedLanguage is the primary language of a document.
type DetectedLanguage struct {
	Name            string  `json:"name"`
	ISO6391Name     string  `json:"iso6391Name"`
	ConfidenceScore float64 `json:"confidenceScore"`
}

type LanguageResult struct {
	ID               string           `json:"id"`
	DetectedLanguage DetectedLanguage `json:"detectedLanguage"`
	Warnings         []Warning        `json:"warnings"`
}

func (r LanguageResult) validate() error {
	if r.DetectedLanguage.ISO6391Name == "" {
		return errors.New("missing detected language")
	}
	return nil
}

type Entity struct {
	Text            string  `json:"text"`
	Category        string  `json:"category"`
	Subcategory     string  `json:"subcategory,omitempty"`
	Offset          int     `json:"offset"`
	Length          int     `json:"length"`
	ConfidenceScore float64 `json:"confidenceScore"`
}

// EntityResult lists the named entities of one document.
type EntityResult struct {
	ID       string    `json:"id"`
	Entities []Entity  `json:"entities"`
	Warnings []Warning `json:"warnings"`
}

func (r EntityResult) validate() error {
	for _, e := range r.Entities {
		if e.Category == "" {
			return fmt.Errorf("entity %q has no category", e.Text)
		}
	}
	return nil
}
