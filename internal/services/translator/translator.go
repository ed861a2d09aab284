// Package translator wraps Azure AI Translator v3.
package translator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/rpc"
)

const (
	APIVersion = "3.0"
	// MaxRequestSize is the character limit across all texts of one request.
	MaxRequestSize = 50000
	// MaxTexts is the element limit of one request.
	MaxTexts = 1000
)

type textItem struct {
	Text string `json:"Text"`
}

type DetectedLanguage struct {
	Language string  `json:"language"`
	Score    float64 `json:"score"`
}

type Translation struct {
	Text string `json:"text"`
	To   string `json:"to"`
}

// TranslateResult holds the translations of one input text.
type TranslateResult struct {
	DetectedLanguage *DetectedLanguage `json:"detectedLanguage,omitempty"`
	Translations     []Translation     `json:"translations"`
}

type translateResponse []TranslateResult

func (r translateResponse) Validate() error {
	for i, item := range r {
		if len(item.Translations) == 0 {
			return fmt.Errorf("item %d has no translations", i)
		}
	}
	return nil
}

// DetectResult is the detected language of one input text.
type DetectResult struct {
	Language                   string  `json:"language"`
	Score                      float64 `json:"score"`
	IsTranslationSupported     bool    `json:"isTranslationSupported"`
	IsTransliterationSupported bool    `json:"isTransliterationSupported"`
}

type detectResponse []DetectResult

func (r detectResponse) Validate() error {
	for i, item := range r {
		if item.Language == "" {
			return fmt.Errorf("item %d has no language", i)
		}
	}
	return nil
}

// TransliterateResult is one text converted to the target script.
type TransliterateResult struct {
	Text   string `json:"text"`
	Script string `json:"script"`
}

type transliterateResponse []TransliterateResult

func (r transliterateResponse) Validate() error {
	for i, item := range r {
		if item.Script == "" {
			return fmt.Errorf("item %d has no script", i)
		}
	}
	return nil
}

// LanguageInfo describes a supported language.
type LanguageInfo struct {
	Name       string `json:"name"`
	NativeName string `json:"nativeName"`
	Dir        string `json:"dir"`
}

// Languages lists supported languages per scope keyed by language code.
type Languages struct {
	Translation     map[string]LanguageInfo `json:"translation,omitempty"`
	Transliteration map[string]LanguageInfo `json:"transliteration,omitempty"`
	Dictionary      map[string]LanguageInfo `json:"dictionary,omitempty"`
}

func (l Languages) Validate() error {
	if len(l.Translation)+len(l.Transliteration)+len(l.Dictionary) == 0 {
		return errors.New("no languages in response")
	}
	return nil
}

// Service calls Azure AI Translator through a resilient client.
// The client must route the "translator" service.
type Service struct {
	client *rpc.Client
	// Cache marks calls as cacheable.
	Cache bool
}

func New(client *rpc.Client) *Service {
	return &Service{client: client}
}

// Translate translates texts into every language in to. An empty from
// lets the service detect the source language.
func (s *Service) Translate(ctx context.Context, texts []string, to []string, from string) ([]TranslateResult, error) {
	if len(to) == 0 {
		return nil, domain.NewFailure(domain.FailureInvalidInput, "translate: no target language")
	}
	q := url.Values{"to": to}
	if from != "" {
		q.Set("from", from)
	}

	op, err := s.newOperation(domain.KindTranslate, "/translate", q, texts)
	if err != nil {
		return nil, err
	}
	res, err := rpc.Do[translateResponse](ctx, s.client, op)
	if err != nil {
		return nil, err
	}
	if err := checkCount(domain.KindTranslate, len(res), len(texts)); err != nil {
		return nil, err
	}
	return res, nil
}

// Detect identifies the language of each text.
func (s *Service) Detect(ctx context.Context, texts []string) ([]DetectResult, error) {
	op, err := s.newOperation(domain.KindDetect, "/detect", nil, texts)
	if err != nil {
		return nil, err
	}
	res, err := rpc.Do[detectResponse](ctx, s.client, op)
	if err != nil {
		return nil, err
	}
	if err := checkCount(domain.KindDetect, len(res), len(texts)); err != nil {
		return nil, err
	}
	return res, nil
}

// Transliterate converts texts in language from one script to another.
func (s *Service) Transliterate(
	ctx context.Context,
	texts []string,
	language, fromScript, toScript string,
) ([]TransliterateResult, error) {
	if language == "" || fromScript == "" || toScript == "" {
		return nil, domain.NewFailure(domain.FailureInvalidInput, "transliterate: language and scripts are required")
	}
	q := url.Values{}
	q.Set("language", language)
	q.Set("fromScript", fromScript)
	q.Set("toScript", toScript)

	op, err := s.newOperation(domain.KindTransliterate, "/transliterate", q, texts)
	if err != nil {
		return nil, err
	}
	res, err := rpc.Do[transliterateResponse](ctx, s.client, op)
	if err != nil {
		return nil, err
	}
	if err := checkCount(domain.KindTransliterate, len(res), len(texts)); err != nil {
		return nil, err
	}
	return res, nil
}

// Languages lists supported languages. scope is a comma-separated subset of
// translation, transliteration and dictionary; empty means all.
func (s *Service) Languages(ctx context.Context, scope ...string) (Languages, error) {
	var q url.Values
	if len(scope) > 0 {
		q = url.Values{"scope": {strings.Join(scope, ",")}}
	}
	op := rpc.NewGetOperation(domain.KindLanguages, "/languages", q)
	op.Cacheable = true
	return rpc.Do[Languages](ctx, s.client, op)
}

func (s *Service) newOperation(kind domain.OperationKind, path string, q url.Values, texts []string) (rpc.Operation, error) {
	if len(texts) == 0 {
		return rpc.Operation{}, domain.NewFailure(domain.FailureInvalidInput, fmt.Sprintf("%s: no texts", kind))
	}
	if len(texts) > MaxTexts {
		return rpc.Operation{}, domain.NewFailure(domain.FailureInvalidInput,
			fmt.Sprintf("%s: %d texts over limit %d", kind, len(texts), MaxTexts))
	}

	body := make([]textItem, len(texts))
	for i, t := range texts {
		body[i] = textItem{Text: t}
	}

	op := rpc.NewOperation(kind, strings.Join(texts, ""), path, body)
	op.Request.Query = q
	op.Override.MaxPayloadSize = MaxRequestSize
	op.Cacheable = s.Cache
	return op, nil
}

func checkCount(kind domain.OperationKind, got, want int) error {
	if got != want {
		return domain.NewFailure(domain.FailureUnknown, fmt.Sprintf("%s returned %d items for %d texts", kind, got, want))
	}
	return nil
}
