package langserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// client talks to one language server.
type client struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
}

func newClient(endpoint, authToken string, timeout time.Duration) *client {
	return &client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		authToken:  authToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type infoResponse struct {
	Ready      bool `json:"ready"`
	Dimensions int  `json:"dimensions"`
	Languages  []struct {
		Lang string `json:"lang"`
	} `json:"languages"`
}

type tokenizeRequest struct {
	Input []string `json:"input"`
	Lang  string   `json:"lang"`
}

type tokenizeResponse struct {
	Tokens [][]string `json:"tokens"`
}

type vectorizeRequest struct {
	Tokens []string `json:"tokens"`
	Lang   string   `json:"lang"`
}

type vectorizeResponse struct {
	Vectors [][]float64 `json:"vectors"`
}

func (c *client) Info(ctx context.Context) (*infoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/info", nil)
	if err != nil {
		return nil, fmt.Errorf("langserver: create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("langserver: probe %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("langserver: probe %s: status %d", c.endpoint, resp.StatusCode)
	}
	var info infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("langserver: decode info: %w", err)
	}
	return &info, nil
}

func (c *client) Tokenize(ctx context.Context, input []string, lang string) ([][]string, error) {
	var out tokenizeResponse
	if err := c.post(ctx, "/tokenize", tokenizeRequest{Input: input, Lang: lang}, &out); err != nil {
		return nil, err
	}
	if len(out.Tokens) != len(input) {
		return nil, fmt.Errorf("langserver: got %d token lists for %d inputs", len(out.Tokens), len(input))
	}
	return out.Tokens, nil
}

func (c *client) Vectorize(ctx context.Context, tokens []string, lang string) ([][]float64, error) {
	var out vectorizeResponse
	if err := c.post(ctx, "/vectorize", vectorizeRequest{Tokens: tokens, Lang: lang}, &out); err != nil {
		return nil, err
	}
	if len(out.Vectors) != len(tokens) {
		return nil, fmt.Errorf("langserver: got %d vectors for %d tokens", len(out.Vectors), len(tokens))
	}
	return out.Vectors, nil
}

func (c *client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("langserver: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("langserver: create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("langserver: %s %s: %w", path, c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("langserver: %s %s: status %d", path, c.endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("langserver: decode response: %w", err)
	}
	return nil
}

func (c *client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}
