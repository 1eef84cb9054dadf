// Package openai implements llm.Provider against an OpenAI-compatible chat
// completions endpoint, the default chat binding per the module's chat
// provider configuration.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"noema/internal/config"
	"noema/internal/llm"
	"noema/internal/observability"
)

// Client adapts the openai-go SDK to llm.Provider.
type Client struct {
	sdk        sdk.Client
	model      string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
}

// New constructs a Client from the chat configuration.
func New(cfg config.ChatConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{option.WithHTTPClient(httpClient)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		sdk:        sdk.NewClient(opts...),
		model:      cfg.Model,
		baseURL:    firstNonEmpty(cfg.BaseURL, "https://api.openai.com/v1"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		timeout:    timeout,
	}
}

// Complete implements llm.Provider.
func (c *Client) Complete(ctx context.Context, model string, msgs []llm.Message, schema *llm.ResponseSchema) (string, error) {
	if model == "" {
		model = c.model
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := llm.StartRequestSpan(ctx, "OpenAI Complete", model, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)

	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(model),
		Messages: adaptMessages(msgs),
	}
	if schema != nil {
		params.SetExtraFields(map[string]any{
			"response_format": map[string]any{
				"type": "json_schema",
				"json_schema": map[string]any{
					"name":   firstNonEmpty(schema.Name, "response"),
					"schema": schema.Schema,
					"strict": schema.Strict,
				},
			},
		})
	}

	log := observability.LoggerWithTrace(ctx)
	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", model).Dur("duration", dur).Msg("chat_completion_error")
		span.RecordError(err)
		return "", err
	}
	if len(comp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	out := comp.Choices[0].Message.Content
	llm.RecordTokenAttributes(span, int(comp.Usage.PromptTokens), int(comp.Usage.CompletionTokens), int(comp.Usage.TotalTokens))
	llm.RecordTokenMetrics(ctx, model, int(comp.Usage.PromptTokens), int(comp.Usage.CompletionTokens))
	llm.LogRedactedResponse(ctx, comp.Choices)
	log.Debug().Str("model", model).Dur("duration", dur).Int("total_tokens", int(comp.Usage.TotalTokens)).Msg("chat_completion_ok")
	return out, nil
}

// Transcribe implements llm.Transcriber via a raw multipart POST to
// /audio/transcriptions: the SDK's typed audio params don't expose a plain
// []byte upload, and a hand-rolled multipart body is the same technique the
// chat client falls back to for endpoints the SDK doesn't model cleanly.
func (c *Client) Transcribe(ctx context.Context, model string, audio llm.AudioPart) (string, error) {
	if model == "" {
		model = c.model
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "audio."+extensionForMime(audio.MimeType))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(audio.Data)); err != nil {
		return "", err
	}
	if err := w.WriteField("model", model); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	url := strings.TrimSuffix(c.baseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcribe: status %d: %s", resp.StatusCode, string(b))
	}
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("transcribe: decode response: %w", err)
	}
	return parsed.Text, nil
}

func adaptMessages(msgs []llm.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		content := m.Content
		if len(m.Images) == 0 {
			switch strings.ToLower(m.Role) {
			case "system":
				out = append(out, sdk.SystemMessage(content))
			case "assistant":
				out = append(out, sdk.AssistantMessage(content))
			default:
				out = append(out, sdk.UserMessage(content))
			}
			continue
		}
		parts := []sdk.ChatCompletionContentPartUnionParam{sdk.TextContentPart(content)}
		for _, img := range m.Images {
			dataURL := "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
			parts = append(parts, sdk.ImageContentPart(sdk.ChatCompletionContentPartImageImageURLParam{URL: dataURL}))
		}
		out = append(out, sdk.UserMessage(parts))
	}
	return out
}

func extensionForMime(mime string) string {
	switch mime {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a":
		return "m4a"
	default:
		return "wav"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
