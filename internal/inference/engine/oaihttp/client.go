package oaihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/docchat-backend/internal/inference/engine"
	"github.com/yungbote/docchat-backend/internal/platform/apierr"
)

const (
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
)

type Config struct {
	BaseURL string
	APIKey  string

	// OpenAI-compatible endpoint paths (provider defaults are used if empty).
	ChatCompletionsPath string
	EmbeddingsPath      string

	// Timeout bounds non-streaming calls. Streaming relies on ctx cancellation
	// unless StreamTimeout is set.
	Timeout       time.Duration
	StreamTimeout time.Duration
}

// ProviderConfig fills BaseURL and paths for a named provider. Google is
// reached through Gemini's OpenAI-compatible surface.
func ProviderConfig(provider, apiKey, baseURL string) (Config, error) {
	cfg := Config{APIKey: strings.TrimSpace(apiKey), BaseURL: strings.TrimSpace(baseURL)}
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderOpenAI:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.openai.com"
		}
		cfg.ChatCompletionsPath = "/v1/chat/completions"
		cfg.EmbeddingsPath = "/v1/embeddings"
	case ProviderGoogle:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
		}
		cfg.ChatCompletionsPath = "/chat/completions"
		cfg.EmbeddingsPath = "/embeddings"
	default:
		return Config{}, fmt.Errorf("%w: unsupported provider %q", apierr.ErrConfiguration, provider)
	}
	if cfg.APIKey == "" {
		return Config{}, fmt.Errorf("%w: missing api key for provider %q", apierr.ErrConfiguration, provider)
	}
	return cfg, nil
}

type Engine struct {
	baseURL string
	apiKey  string

	chatCompletionsPath string
	embeddingsPath      string

	timeout       time.Duration
	streamTimeout time.Duration

	httpClient *http.Client
}

func New(cfg Config) (*Engine, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: oai_http base_url required", apierr.ErrConfiguration)
	}

	chatPath := strings.TrimSpace(cfg.ChatCompletionsPath)
	if chatPath == "" {
		chatPath = "/v1/chat/completions"
	}
	embPath := strings.TrimSpace(cfg.EmbeddingsPath)
	if embPath == "" {
		embPath = "/v1/embeddings"
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Engine{
		baseURL:             baseURL,
		apiKey:              strings.TrimSpace(cfg.APIKey),
		chatCompletionsPath: chatPath,
		embeddingsPath:      embPath,
		timeout:             timeout,
		streamTimeout:       cfg.StreamTimeout,
		httpClient:          &http.Client{Transport: tr},
	}, nil
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(cfg Config, httpClient *http.Client) (*Engine, error) {
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		e.httpClient = httpClient
	}
	return e, nil
}

// ---------------- Embeddings ----------------

type embeddingsRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (e *Engine) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	var resp embeddingsResponse
	raw, err := e.doJSON(ctx, e.timeout, http.MethodPost, e.embeddingsPath, embeddingsRequest{Model: model, Input: inputs})
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apierr.Upstream("decode embeddings", err)
	}

	out := make([][]float32, len(inputs))
	for pos, d := range resp.Data {
		idx := d.Index
		// Some servers omit indices but keep ordering.
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			idx = pos
		}
		if idx >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[idx] = vec
	}

	for i := range out {
		if len(out[i]) == 0 {
			return nil, apierr.Upstream("embeddings", fmt.Errorf("missing index=%d (model=%s)", i, model))
		}
	}
	return out, nil
}

// ---------------- Text generation (Chat Completions) ----------------

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		Text *string `json:"text"`
	} `json:"choices"`
}

type chatCompletionStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta,omitempty"`
		Text string `json:"text,omitempty"`
	} `json:"choices"`
	Error any `json:"error,omitempty"`
}

// GenerateText performs one chat completion call. A response without a
// content field is not an error; the returned Completion carries the raw body.
func (e *Engine) GenerateText(ctx context.Context, model string, messages []engine.Message, opts engine.GenerateOptions) (engine.Completion, error) {
	chatMsgs := toChatMessages(messages)
	if len(chatMsgs) == 0 {
		return engine.Completion{}, errors.New("no messages")
	}

	raw, err := e.doJSON(ctx, e.timeout, http.MethodPost, e.chatCompletionsPath, buildChatRequest(model, chatMsgs, opts, false))
	if err != nil {
		return engine.Completion{}, err
	}

	out := engine.Completion{Raw: json.RawMessage(raw)}
	var resp chatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return out, nil
	}
	out.Content = extractChatText(resp)
	return out, nil
}

func (e *Engine) StreamText(ctx context.Context, model string, messages []engine.Message, opts engine.GenerateOptions, onDelta func(delta string)) (string, error) {
	chatMsgs := toChatMessages(messages)
	if len(chatMsgs) == 0 {
		return "", errors.New("no messages")
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildChatRequest(model, chatMsgs, opts, true)); err != nil {
		return "", err
	}

	ctx2 := ctx
	if e.streamTimeout > 0 {
		var cancel context.CancelFunc
		ctx2, cancel = context.WithTimeout(ctx, e.streamTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx2, http.MethodPost, e.baseURL+e.chatCompletionsPath, &buf)
	if err != nil {
		return "", err
	}
	e.setHeaders(req, "application/json", "text/event-stream")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", apierr.Upstream("chat stream", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var full strings.Builder
	err = streamSSE(resp.Body, func(_ string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			return nil
		}

		var chunk chatCompletionStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		if chunk.Error != nil {
			b, _ := json.Marshal(chunk.Error)
			return apierr.Upstream("chat stream", fmt.Errorf("stream error: %s", string(b)))
		}

		for _, c := range chunk.Choices {
			delta := c.Delta.Content
			if delta == "" {
				delta = c.Text
			}
			if delta == "" {
				continue
			}
			full.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
		return nil
	})
	if err != nil {
		return "", apierr.Upstream("chat stream", err)
	}
	return full.String(), nil
}

func buildChatRequest(model string, messages []chatMessage, opts engine.GenerateOptions, stream bool) chatCompletionRequest {
	req := chatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: opts.MaxTokens,
		Stream:    stream,
	}
	temp := opts.Temperature
	req.Temperature = &temp
	if opts.TopP > 0 {
		topP := opts.TopP
		req.TopP = &topP
	}
	return req
}

func toChatMessages(messages []engine.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		role := strings.TrimSpace(m.Role)
		content := strings.TrimSpace(m.Content)
		if role == "" || content == "" {
			continue
		}
		out = append(out, chatMessage{Role: role, Content: content})
	}
	return out
}

// extractChatText returns the first choice's content, or nil when no choice
// carries one.
func extractChatText(resp chatCompletionResponse) *string {
	for _, c := range resp.Choices {
		if c.Message.Content != nil {
			return c.Message.Content
		}
		if c.Text != nil {
			return c.Text
		}
	}
	return nil
}

// ---------------- HTTP helpers ----------------

func (e *Engine) setHeaders(req *http.Request, contentType string, accept string) {
	if strings.TrimSpace(contentType) != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(accept) != "" {
		req.Header.Set("Accept", accept)
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
}

func (e *Engine) doJSON(ctx context.Context, timeout time.Duration, method string, path string, body any) ([]byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	ctx2 := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx2, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx2, method, e.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	e.setHeaders(req, "application/json", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, apierr.Upstream("oai request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, apierr.Upstream("oai read", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > 1<<20 {
			raw = raw[:1<<20]
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
