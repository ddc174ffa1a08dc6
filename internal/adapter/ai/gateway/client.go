// Package gateway implements domain.Completer against the hosted completion endpoint.
package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/interview-coach/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/interview-coach/internal/config"
	"github.com/fairyhunter13/interview-coach/internal/domain"
	obsctx "github.com/fairyhunter13/interview-coach/internal/observability"
)

const snippetLimit = 512

// Client posts {prompt,type,temperature?} and returns the result text. It never retries.
type Client struct {
	url    string
	apiKey string
	model  string
	hc     *http.Client
	tokens *tokencount.Counter
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// New constructs a gateway client. A zero GatewayTimeout leaves calls bounded
// only by the caller's context.
func New(cfg config.Config, opts ...Option) *Client {
	c := &Client{
		url:    cfg.GatewayURL,
		apiKey: cfg.GatewayAPIKey,
		model:  cfg.GatewayModel,
		hc: &http.Client{
			Timeout:   cfg.GatewayTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tokens: tokencount.DefaultCounter,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type completionResponse struct {
	Result json.RawMessage `json:"result"`
}

// Complete sends one completion request.
func (c *Client) Complete(ctx domain.Context, req domain.CompletionRequest) (string, error) {
	lg := obsctx.LoggerFromContext(ctx)
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("op=gateway.Complete: %w", err)
	}

	start := time.Now()
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("op=gateway.Complete: %w", err)
	}
	r.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if rid := obsctx.RequestIDFromContext(ctx); rid != "" {
		r.Header.Set("X-Request-Id", rid)
	}

	resp, err := c.hc.Do(r)
	if err != nil {
		observability.ObserveCompletion(req.Type, "network_error", time.Since(start))
		lg.Error("completion request failed", slog.String("type", req.Type), slog.Any("error", err))
		return "", fmt.Errorf("op=gateway.Complete: %w", &domain.TransportError{Detail: err.Error()})
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.ObserveCompletion(req.Type, "read_error", time.Since(start))
		return "", fmt.Errorf("op=gateway.Complete: %w", &domain.TransportError{Status: resp.StatusCode, Detail: err.Error()})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := snippet(raw)
		observability.ObserveCompletion(req.Type, fmt.Sprintf("http_%d", resp.StatusCode), time.Since(start))
		te := &domain.TransportError{Status: resp.StatusCode, Detail: detail}
		if resp.StatusCode == http.StatusTooManyRequests {
			te.Err = domain.ErrUpstreamRateLimit
			lg.Warn("completion endpoint rate limited", slog.String("type", req.Type), slog.Int("status", resp.StatusCode))
		} else {
			lg.Error("completion endpoint non-2xx", slog.String("type", req.Type), slog.Int("status", resp.StatusCode), slog.String("body", detail))
		}
		return "", fmt.Errorf("op=gateway.Complete: %w", te)
	}

	var out completionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		observability.ObserveCompletion(req.Type, "decode_error", time.Since(start))
		lg.Error("completion response decode error", slog.String("type", req.Type), slog.String("body", snippet(raw)), slog.Any("error", err))
		return "", fmt.Errorf("op=gateway.Complete: %w: %v", domain.ErrSchemaInvalid, err)
	}
	result := resultText(out.Result)
	if strings.TrimSpace(result) == "" {
		observability.ObserveCompletion(req.Type, "empty", time.Since(start))
		return "", fmt.Errorf("op=gateway.Complete: %w: empty result", domain.ErrSchemaInvalid)
	}

	observability.ObserveCompletion(req.Type, "ok", time.Since(start))
	usage := c.tokens.Estimate(req.Prompt, result, c.model)
	observability.ObserveTokens(req.Type, usage.PromptTokens, usage.CompletionTokens)
	lg.Debug("completion ok",
		slog.String("type", req.Type),
		slog.Int("prompt_tokens", usage.PromptTokens),
		slog.Int("completion_tokens", usage.CompletionTokens),
		slog.Duration("took", time.Since(start)))
	return result, nil
}

// resultText unquotes a JSON string result and returns any other JSON value verbatim.
func resultText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

func snippet(b []byte) string {
	if len(b) > snippetLimit {
		b = b[:snippetLimit]
	}
	return string(b)
}
