package translator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/rpc"
	"github.com/vietddude/cogcall/internal/infra/storage/memory"
)

func newTestService(t *testing.T, cache rpc.ResponseCache, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	router := rpc.NewRouter()
	router.AddProvider("translator", rpc.NewHTTPProvider(rpc.HTTPConfig{
		Name:       "translator",
		Endpoint:   srv.URL,
		APIKey:     "test-key",
		Region:     "westeurope",
		APIVersion: APIVersion,
	}))
	client := rpc.NewClient(router, rpc.ClientConfig{
		Retry: rpc.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Cache: cache,
	})
	return New(client)
}

func TestTranslate(t *testing.T) {
	s := newTestService(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("api-version") != "3.0" || len(q["to"]) != 2 || q.Get("from") != "" {
			t.Errorf("unexpected query %v", q)
		}
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "test-key" || r.Header.Get("Ocp-Apim-Subscription-Region") != "westeurope" {
			t.Error("missing auth headers")
		}
		if r.Header.Get("X-ClientTraceId") == "" {
			t.Error("missing trace id")
		}

		var body []textItem
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body) != 1 || body[0].Text != "Hello" {
			t.Errorf("unexpected body %+v", body)
		}
		_, _ = io.WriteString(w, `[{"detectedLanguage":{"language":"en","score":1.0},
			"translations":[{"text":"Bonjour","to":"fr"},{"text":"Hallo","to":"de"}]}]`)
	})

	res, err := s.Translate(context.Background(), []string{"Hello"}, []string{"fr", "de"}, "")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(res) != 1 || res[0].Translations[1].Text != "Hallo" || res[0].DetectedLanguage.Language != "en" {
		t.Errorf("unexpected result %+v", res)
	}

	stats := s.client.Snapshot()
	if stats.TotalVolume != 5 {
		t.Errorf("volume = %d, want 5", stats.TotalVolume)
	}
}

func TestTranslate_CountMismatchIsUnknown(t *testing.T) {
	s := newTestService(t, nil, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"translations":[{"text":"Bonjour","to":"fr"}]}]`)
	})

	_, err := s.Translate(context.Background(), []string{"Hello", "World"}, []string{"fr"}, "en")
	if domain.KindOf(err) != domain.FailureUnknown {
		t.Fatalf("expected Unknown, got %v", err)
	}
}

func TestTranslate_Validation(t *testing.T) {
	s := newTestService(t, nil, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should be rejected locally")
	})
	ctx := context.Background()

	if _, err := s.Translate(ctx, []string{"hi"}, nil, ""); domain.KindOf(err) != domain.FailureInvalidInput {
		t.Errorf("no target: got %v", err)
	}
	if _, err := s.Translate(ctx, nil, []string{"fr"}, ""); domain.KindOf(err) != domain.FailureInvalidInput {
		t.Errorf("no texts: got %v", err)
	}
	if _, err := s.Translate(ctx, []string{strings.Repeat("x", MaxRequestSize+1)}, []string{"fr"}, ""); domain.KindOf(err) != domain.FailureInvalidInput {
		t.Errorf("oversized: got %v", err)
	}
	if _, err := s.Transliterate(ctx, []string{"こんにちは"}, "ja", "", "Latn"); domain.KindOf(err) != domain.FailureInvalidInput {
		t.Errorf("missing script: got %v", err)
	}
}

func TestDetect(t *testing.T) {
	s := newTestService(t, nil, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"language":"es","score":0.98,"isTranslationSupported":true,"isTransliterationSupported":false}]`)
	})

	res, err := s.Detect(context.Background(), []string{"Hola mundo"})
	if err != nil || res[0].Language != "es" || !res[0].IsTranslationSupported {
		t.Fatalf("Detect = %+v, %v", res, err)
	}
}

func TestTransliterate(t *testing.T) {
	s := newTestService(t, nil, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("language") != "ja" || q.Get("fromScript") != "Jpan" || q.Get("toScript") != "Latn" {
			t.Errorf("unexpected query %v", q)
		}
		_, _ = io.WriteString(w, `[{"text":"konnichiwa","script":"Latn"}]`)
	})

	res, err := s.Transliterate(context.Background(), []string{"こんにちは"}, "ja", "Jpan", "Latn")
	if err != nil || res[0].Text != "konnichiwa" {
		t.Fatalf("Transliterate = %+v, %v", res, err)
	}
}

func TestLanguages_CachedGet(t *testing.T) {
	var hits atomic.Int32
	s := newTestService(t, memory.NewCache(10), func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodGet || r.URL.Query().Get("scope") != "translation" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		_, _ = io.WriteString(w, `{"translation":{"fr":{"name":"French","nativeName":"Français","dir":"ltr"}}}`)
	})
	ctx := context.Background()

	for range 2 {
		langs, err := s.Languages(ctx, "translation")
		if err != nil {
			t.Fatalf("Languages: %v", err)
		}
		if langs.Translation["fr"].Name != "French" {
			t.Errorf("unexpected languages %+v", langs)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1 (second call cached)", hits.Load())
	}
	if got := s.client.Snapshot().TotalRequests; got != 1 {
		t.Errorf("recorded requests = %d, cache hits should not be recorded", got)
	}
}
