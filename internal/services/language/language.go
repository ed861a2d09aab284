// Package language wraps the Azure AI Language text analysis endpoints.
package language

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/rpc"
)

const (
	// APIVersion of the Language REST API.
	APIVersion = "2023-04-01"
	// MaxDocumentSize is the per-document character limit of synchronous calls.
	MaxDocumentSize = 5120

	analyzePath = "/language/:analyze-text"
	jobsPath    = "/language/analyze-text/jobs"
)

// Service calls Azure AI Language through a resilient client.
type Service struct {
	client *rpc.Client
	// Language is sent as the document language hint (default "en").
	Language string
	// PollInterval is the wait between job status requests (default 2s).
	PollInterval time.Duration
	// MaxPolls bounds a summarization job (default 60).
	MaxPolls int
	// Cache marks synchronous analyses as cacheable.
	Cache bool
}

// New creates a Service. The client must route the "language" service.
func New(client *rpc.Client) *Service {
	return &Service{
		client:       client,
		Language:     "en",
		PollInterval: 2 * time.Second,
		MaxPolls:     60,
	}
}

type document struct {
	ID       string `json:"id"`
	Language string `json:"language,omitempty"`
	Text     string `json:"text"`
}

type analysisInput struct {
	Documents []document `json:"documents"`
}

type analyzeRequest struct {
	Kind          string         `json:"kind"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	AnalysisInput analysisInput  `json:"analysisInput"`
}

// AnalyzeSentiment returns document, sentence and opinion-level sentiment.
func (s *Service) AnalyzeSentiment(ctx context.Context, text string) (SentimentResult, error) {
	return analyze[SentimentResult](ctx, s, domain.KindSentiment, "SentimentAnalysis", text,
		map[string]any{"opinionMining": true})
}

// ExtractKeyPhrases returns the main talking points of text.
func (s *Service) ExtractKeyPhrases(ctx context.Context, text string) (KeyPhraseResult, error) {
	return analyze[KeyPhraseResult](ctx, s, domain.KindKeyPhrases, "KeyPhraseExtraction", text, nil)
}

// DetectLanguage returns the primary language of text.
func (s *Service) DetectLanguage(ctx context.Context, text string) (LanguageResult, error) {
	return analyze[LanguageResult](ctx, s, domain.KindLanguageDetection, "LanguageDetection", text, nil)
}

// RecognizeEntities returns the named entities in text.
func (s *Service) RecognizeEntities(ctx context.Context, text string) (EntityResult, error) {
	return analyze[EntityResult](ctx, s, domain.KindEntities, "EntityRecognition", text, nil)
}

func (s *Service) document(kind domain.OperationKind, text string) document {
	doc := document{ID: "1", Text: text}
	if kind != domain.KindLanguageDetection {
		doc.Language = s.Language
	}
	return doc
}

func analyze[T any](
	ctx context.Context,
	s *Service,
	kind domain.OperationKind,
	task, text string,
	params map[string]any,
) (T, error) {
	var zero T

	body := analyzeRequest{
		Kind:          task,
		Parameters:    params,
		AnalysisInput: analysisInput{Documents: []document{s.document(kind, text)}},
	}
	op := rpc.NewOperation(kind, text, analyzePath, body)
	op.Cacheable = s.Cache

	resp, err := rpc.Do[analyzeResponse[T]](ctx, s.client, op)
	if err != nil {
		return zero, err
	}
	if len(resp.Results.Errors) > 0 {
		return zero, documentFailure(resp.Results.Errors[0])
	}
	if len(resp.Results.Documents) == 0 {
		return zero, domain.NewFailure(domain.FailureUnknown, fmt.Sprintf("%s returned no documents", kind))
	}
	return resp.Results.Documents[0], nil
}

func documentFailure(e DocumentError) *domain.Failure {
	msg := e.Error.Message
	if e.Error.Code != "" {
		msg = e.Error.Code + ": " + msg
	}
	return domain.NewFailure(domain.FailureInvalidInput, fmt.Sprintf("document %s: %s", e.ID, msg))
}
