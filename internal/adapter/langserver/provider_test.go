package langserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/botkit-ai/nlu-engine/internal/ports"
	"github.com/botkit-ai/nlu-engine/pkg/config"
)

var testTokenPattern = regexp.MustCompile(`\s+|\S+`)

type testServer struct {
	*httptest.Server
	failing atomic.Bool
	hits    atomic.Int32
}

func newTestServer(t *testing.T, dims int, wantToken string) *testServer {
	t.Helper()
	ts := &testServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ready":      true,
			"dimensions": dims,
			"languages":  []map[string]string{{"lang": "en"}},
		})
	})
	mux.HandleFunc("/tokenize", func(w http.ResponseWriter, r *http.Request) {
		ts.hits.Add(1)
		if wantToken != "" && r.Header.Get("Authorization") != "Bearer "+wantToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if ts.failing.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		tokens := make([][]string, len(req.Input))
		for i, text := range req.Input {
			tokens[i] = testTokenPattern.FindAllString(text, -1)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"tokens": tokens})
	})
	mux.HandleFunc("/vectorize", func(w http.ResponseWriter, r *http.Request) {
		ts.hits.Add(1)
		if ts.failing.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		var req struct {
			Tokens []string `json:"tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vectors := make([][]float64, len(req.Tokens))
		for i, tok := range req.Tokens {
			vec := make([]float64, dims)
			vec[0] = float64(len(tok))
			vectors[i] = vec
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"vectors": vectors})
	})

	ts.Server = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func newTestProvider(t *testing.T, sources ...config.LangSource) *Provider {
	t.Helper()
	p := New(config.LangServerConfig{
		Sources:        sources,
		RequestTimeout: 2 * time.Second,
	}, zap.NewNop())
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return p
}

func TestInitializeRegistersLanguages(t *testing.T) {
	srv := newTestServer(t, 3, "")
	p := newTestProvider(t, config.LangSource{Endpoint: srv.URL})

	if !p.Ready() {
		t.Error("provider not ready")
	}
	langs := p.Languages()
	if len(langs) != 1 || langs[0] != "en" {
		t.Errorf("languages = %v, want [en]", langs)
	}
	if p.Dimensions() != 3 {
		t.Errorf("dimensions = %d, want 3", p.Dimensions())
	}
}

func TestTokenizeRestoresCasing(t *testing.T) {
	srv := newTestServer(t, 3, "")
	p := newTestProvider(t, config.LangSource{Endpoint: srv.URL})

	tokens, err := p.Tokenize(context.Background(), []string{"Fly To NYC"}, "en")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []string{"Fly", " ", "To", " ", "NYC"}
	if len(tokens[0]) != len(want) {
		t.Fatalf("tokens = %v", tokens[0])
	}
	for i := range want {
		if tokens[0][i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, tokens[0][i], want[i])
		}
	}
}

func TestTokenizeUsesCache(t *testing.T) {
	srv := newTestServer(t, 3, "")
	p := newTestProvider(t, config.LangSource{Endpoint: srv.URL})

	if _, err := p.Tokenize(context.Background(), []string{"hello world"}, "en"); err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	hits := srv.hits.Load()
	if _, err := p.Tokenize(context.Background(), []string{"Hello World"}, "en"); err != nil {
		t.Fatalf("cached Tokenize: %v", err)
	}
	if srv.hits.Load() != hits {
		t.Errorf("cached call hit the server %d more times", srv.hits.Load()-hits)
	}
}

func TestTokenizeEmptyInput(t *testing.T) {
	srv := newTestServer(t, 3, "")
	p := newTestProvider(t, config.LangSource{Endpoint: srv.URL})
	before := srv.hits.Load()

	tokens, err := p.Tokenize(context.Background(), nil, "en")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(tokens) != 0 {
		t.Errorf("tokens = %v, want empty", tokens)
	}
	if srv.hits.Load() != before {
		t.Error("empty input reached the server")
	}
}

func TestVectorizeSpaceTokensAreZero(t *testing.T) {
	srv := newTestServer(t, 3, "")
	p := newTestProvider(t, config.LangSource{Endpoint: srv.URL})

	vectors, err := p.Vectorize(context.Background(), []string{"hello", " ", "world"}, "en")
	if err != nil {
		t.Fatalf("Vectorize: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("got %d vectors", len(vectors))
	}
	if vectors[0][0] != 5 || vectors[2][0] != 5 {
		t.Errorf("word vectors = %v, %v", vectors[0], vectors[2])
	}
	for _, v := range vectors[1] {
		if v != 0 {
			t.Fatalf("space vector = %v, want zeros", vectors[1])
		}
	}
}

func TestFailoverDisablesFailingSource(t *testing.T) {
	bad := newTestServer(t, 3, "")
	good := newTestServer(t, 3, "")
	p := newTestProvider(t,
		config.LangSource{Endpoint: bad.URL},
		config.LangSource{Endpoint: good.URL},
	)
	bad.failing.Store(true)

	if _, err := p.Tokenize(context.Background(), []string{"hello"}, "en"); err != nil {
		t.Fatalf("Tokenize with failover: %v", err)
	}
	badHits := bad.hits.Load()
	if badHits == 0 {
		t.Fatal("first source was never tried")
	}
	if good.hits.Load() == 0 {
		t.Fatal("second source was never tried")
	}

	// the failing source is now cooling down and must be skipped
	if _, err := p.Tokenize(context.Background(), []string{"another one"}, "en"); err != nil {
		t.Fatalf("Tokenize after disable: %v", err)
	}
	if bad.hits.Load() != badHits {
		t.Errorf("disabled source hit %d more times", bad.hits.Load()-badHits)
	}
}

func TestAllSourcesExhausted(t *testing.T) {
	srv := newTestServer(t, 3, "")
	p := newTestProvider(t, config.LangSource{Endpoint: srv.URL})
	srv.failing.Store(true)

	_, err := p.Tokenize(context.Background(), []string{"hello"}, "en")
	if !errors.Is(err, ports.ErrNoProvider) {
		t.Errorf("err = %v, want ErrNoProvider", err)
	}
}

func TestUnsupportedLanguage(t *testing.T) {
	srv := newTestServer(t, 3, "")
	p := newTestProvider(t, config.LangSource{Endpoint: srv.URL})

	_, err := p.Tokenize(context.Background(), []string{"hola"}, "es")
	if !errors.Is(err, ports.ErrLangNotSupported) {
		t.Errorf("err = %v, want ErrLangNotSupported", err)
	}
}

func TestBearerTokenForwarded(t *testing.T) {
	srv := newTestServer(t, 3, "sekret")
	p := newTestProvider(t, config.LangSource{Endpoint: srv.URL, AuthToken: "sekret"})

	if _, err := p.Tokenize(context.Background(), []string{"hello"}, "en"); err != nil {
		t.Fatalf("Tokenize with auth: %v", err)
	}
}

func TestRestoreCasing(t *testing.T) {
	got := restoreCasing("Fly NYC", []string{"fly", " ", "nyc"})
	if got[0] != "Fly" || got[2] != "NYC" {
		t.Errorf("restored = %v", got)
	}

	// length mismatch leaves tokens untouched
	got = restoreCasing("short", []string{"something", "longer"})
	if got[0] != "something" {
		t.Errorf("mismatched restore = %v", got)
	}
}
