// Package langserver implements the LanguageProvider port over one or more
// remote language servers, with per-source failover and cooldown.
package langserver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/botkit-ai/nlu-engine/internal/observability/telemetry"
	"github.com/botkit-ai/nlu-engine/internal/ports"
	"github.com/botkit-ai/nlu-engine/pkg/config"
)

const (
	probeTimeout  = 2 * time.Second
	probeTries    = 5
	probeInitial  = time.Second
	probeMaxWait  = 5 * time.Second
	maxErrorShift = 5

	// Both caches are dropped wholesale once they reach this size.
	maxCacheEntries = 50000
)

// source is one registered language server plus its failure state. The
// failure fields are guarded by the provider mutex; concurrent failures for
// the same source are last-writer-wins.
type source struct {
	client        *client
	endpoint      string
	languages     []string
	errors        int
	disabledUntil time.Time
}

// Provider implements ports.LanguageProvider across the configured sources.
type Provider struct {
	cfg config.LangServerConfig
	log *zap.Logger

	mu      sync.Mutex
	sources []*source
	byLang  map[string][]*source
	dims    int
	ready   bool

	cacheMu    sync.Mutex
	tokenCache map[string][]float64
	textCache  map[string][]string
}

func New(cfg config.LangServerConfig, log *zap.Logger) *Provider {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Provider{
		cfg:        cfg,
		log:        log,
		byLang:     map[string][]*source{},
		tokenCache: map[string][]float64{},
		textCache:  map[string][]string{},
	}
}

// Initialize probes every configured source and registers the languages the
// ready ones advertise. Sources that stay unreachable are skipped with a
// warning; only zero ready sources is an error.
func (p *Provider) Initialize(ctx context.Context) error {
	clients := make([]*client, len(p.cfg.Sources))
	infos := make([]*infoResponse, len(p.cfg.Sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range p.cfg.Sources {
		i, src := i, src
		clients[i] = newClient(src.Endpoint, src.AuthToken, p.cfg.RequestTimeout)
		g.Go(func() error {
			info, err := p.probe(gctx, clients[i])
			if err != nil {
				p.log.Warn("language source unreachable",
					zap.String("endpoint", src.Endpoint),
					zap.Error(err),
				)
				return nil
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	p.mu.Lock()
	for i, info := range infos {
		if info == nil {
			continue
		}
		if info.Dimensions > 0 {
			if p.dims == 0 {
				p.dims = info.Dimensions
			} else if p.dims != info.Dimensions {
				p.log.Warn("skipping language source with mismatched dimensions",
					zap.String("endpoint", p.cfg.Sources[i].Endpoint),
					zap.Int("expected", p.dims),
					zap.Int("got", info.Dimensions),
				)
				continue
			}
		}
		src := &source{client: clients[i], endpoint: p.cfg.Sources[i].Endpoint}
		for _, l := range info.Languages {
			lang := strings.ToLower(l.Lang)
			src.languages = append(src.languages, lang)
			p.byLang[lang] = append(p.byLang[lang], src)
		}
		p.sources = append(p.sources, src)
	}
	p.ready = len(p.byLang) > 0
	ready := p.ready
	p.mu.Unlock()

	if !ready {
		return fmt.Errorf("langserver: no ready language source")
	}
	return nil
}

func (p *Provider) probe(ctx context.Context, c *client) (*infoResponse, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = probeInitial
	policy.MaxInterval = probeMaxWait

	var info *infoResponse
	operation := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		got, err := c.Info(reqCtx)
		if err != nil {
			return err
		}
		if !got.Ready {
			return fmt.Errorf("langserver: source %s not ready", c.endpoint)
		}
		info = got
		return nil
	}
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, probeTries-1), ctx))
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Tokenize queries with lowercased text and restores the original casing on
// the way out. Results are cached per (language, text).
func (p *Provider) Tokenize(ctx context.Context, utterances []string, language string) ([][]string, error) {
	if len(utterances) == 0 {
		return [][]string{}, nil
	}

	out := make([][]string, len(utterances))
	var missIdx []int
	var missTexts []string
	for i, text := range utterances {
		lowered := strings.ToLower(text)
		if tokens, ok := p.cachedTokens(language, lowered); ok {
			out[i] = restoreCasing(text, tokens)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, lowered)
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	var tokens [][]string
	err := p.withFailover(language, func(c *client) error {
		got, err := c.Tokenize(ctx, missTexts, language)
		if err != nil {
			return err
		}
		tokens = got
		return nil
	})
	if err != nil {
		telemetry.ProviderRequestsTotal.WithLabelValues("tokenize", "error").Inc()
		return nil, err
	}
	telemetry.ProviderRequestsTotal.WithLabelValues("tokenize", "ok").Inc()
	for j, i := range missIdx {
		p.storeTokens(language, missTexts[j], tokens[j])
		out[i] = restoreCasing(utterances[i], tokens[j])
	}
	return out, nil
}

// Vectorize returns one embedding per token. Space tokens get the zero
// vector without a remote call; distinct word tokens are fetched once.
func (p *Provider) Vectorize(ctx context.Context, tokens []string, language string) ([][]float64, error) {
	if len(tokens) == 0 {
		return [][]float64{}, nil
	}

	out := make([][]float64, len(tokens))
	need := map[string][]int{}
	for i, tok := range tokens {
		if strings.TrimSpace(tok) == "" {
			continue
		}
		key := strings.ToLower(tok)
		if vec, ok := p.cachedVector(language, key); ok {
			out[i] = vec
			continue
		}
		need[key] = append(need[key], i)
	}

	if len(need) > 0 {
		miss := make([]string, 0, len(need))
		for tok := range need {
			miss = append(miss, tok)
		}
		sort.Strings(miss)

		var vectors [][]float64
		err := p.withFailover(language, func(c *client) error {
			got, err := c.Vectorize(ctx, miss, language)
			if err != nil {
				return err
			}
			vectors = got
			return nil
		})
		if err != nil {
			telemetry.ProviderRequestsTotal.WithLabelValues("vectorize", "error").Inc()
			return nil, err
		}
		telemetry.ProviderRequestsTotal.WithLabelValues("vectorize", "ok").Inc()
		for j, tok := range miss {
			p.storeVector(language, tok, vectors[j])
			for _, i := range need[tok] {
				out[i] = vectors[j]
			}
		}
		p.mu.Lock()
		if p.dims == 0 && len(vectors) > 0 {
			p.dims = len(vectors[0])
		}
		p.mu.Unlock()
	}

	dims := p.Dimensions()
	for i := range out {
		if out[i] == nil {
			out[i] = make([]float64, dims)
		}
	}
	return out, nil
}

// withFailover walks the language's sources in registration order, skipping
// cooled-down ones. A failing source is disabled for a cooldown exponential
// in its consecutive error count.
func (p *Provider) withFailover(language string, call func(*client) error) error {
	p.mu.Lock()
	candidates := append([]*source(nil), p.byLang[language]...)
	p.mu.Unlock()
	if len(candidates) == 0 {
		return fmt.Errorf("langserver: %w: %s", ports.ErrLangNotSupported, language)
	}

	for _, src := range candidates {
		p.mu.Lock()
		skip := time.Now().Before(src.disabledUntil)
		p.mu.Unlock()
		if skip {
			continue
		}
		if err := call(src.client); err != nil {
			p.disable(src, err)
			continue
		}
		p.mu.Lock()
		src.errors = 0
		p.mu.Unlock()
		return nil
	}
	return fmt.Errorf("langserver: %w for language %s", ports.ErrNoProvider, language)
}

func (p *Provider) disable(src *source, err error) {
	p.mu.Lock()
	src.errors++
	cooldown := time.Duration(1<<uint(min(src.errors, maxErrorShift))) * time.Second
	src.disabledUntil = time.Now().Add(cooldown)
	p.mu.Unlock()

	p.log.Warn("disabling language source",
		zap.String("endpoint", src.endpoint),
		zap.Duration("cooldown", cooldown),
		zap.Error(err),
	)
}

func (p *Provider) Languages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	langs := make([]string, 0, len(p.byLang))
	for lang := range p.byLang {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dims
}

func (p *Provider) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *Provider) cachedTokens(lang, text string) ([]string, bool) {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	tokens, ok := p.textCache[lang+":"+text]
	return tokens, ok
}

func (p *Provider) storeTokens(lang, text string, tokens []string) {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	if len(p.textCache) >= maxCacheEntries {
		p.textCache = map[string][]string{}
	}
	p.textCache[lang+":"+text] = tokens
}

func (p *Provider) cachedVector(lang, token string) ([]float64, bool) {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	vec, ok := p.tokenCache[lang+":"+token]
	return vec, ok
}

func (p *Provider) storeVector(lang, token string, vec []float64) {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	if len(p.tokenCache) >= maxCacheEntries {
		p.tokenCache = map[string][]float64{}
	}
	p.tokenCache[lang+":"+token] = vec
}

// restoreCasing maps lowercased tokens back onto the original text. When the
// token lengths no longer line up with the text, the tokens are returned
// unchanged.
func restoreCasing(original string, tokens []string) []string {
	runes := []rune(original)
	total := 0
	for _, t := range tokens {
		total += len([]rune(t))
	}
	if total != len(runes) {
		return tokens
	}

	out := make([]string, len(tokens))
	off := 0
	for i, t := range tokens {
		n := len([]rune(t))
		out[i] = string(runes[off : off+n])
		off += n
	}
	return out
}
