// Package systement resolves system entities (numbers, dates, durations,
// temperatures) through an external extraction service. Results are passed
// through unchanged; a circuit breaker keeps a dead service from stalling
// every prediction.
package systement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/pkg/config"
)

// Client implements the SystemEntityExtractor port.
type Client struct {
	endpoint   string
	enabled    bool
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        *zap.Logger
}

func NewClient(cfg config.SystemEntityConfig, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "system-entity",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("system entity breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		endpoint:   cfg.Endpoint,
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		log:        log,
	}
}

type extractRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

type extractResponse struct {
	Entities []extractedEntity `json:"entities"`
}

type extractedEntity struct {
	Name       string  `json:"name"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	Value      string  `json:"value"`
	Unit       string  `json:"unit"`
}

// Extract returns the system entities of the text. A disabled client returns
// no entities rather than an error so prediction still works without the
// service.
func (c *Client) Extract(ctx context.Context, text, language string) ([]domain.Entity, error) {
	if !c.enabled || c.endpoint == "" {
		return nil, nil
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.extract(ctx, text, language)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			c.log.Debug("system entity service unavailable, skipping", zap.Error(err))
			return nil, nil
		}
		return nil, err
	}
	return result.([]domain.Entity), nil
}

func (c *Client) extract(ctx context.Context, text, language string) ([]domain.Entity, error) {
	payload, err := json.Marshal(extractRequest{Text: text, Lang: language})
	if err != nil {
		return nil, fmt.Errorf("systement: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/extract", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("systement: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("systement: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("systement: status %d", resp.StatusCode)
	}
	var result extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("systement: decode response: %w", err)
	}

	entities := make([]domain.Entity, len(result.Entities))
	for i, e := range result.Entities {
		entities[i] = domain.Entity{
			Name: e.Name,
			Type: "system",
			Meta: domain.EntityMeta{
				Start:      e.Start,
				End:        e.End,
				Confidence: e.Confidence,
				Source:     e.Source,
			},
			Data: domain.EntityData{Value: e.Value, Unit: e.Unit},
		}
	}
	return entities, nil
}
