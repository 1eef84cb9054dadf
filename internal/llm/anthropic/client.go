// Package anthropic implements llm.Provider against the Anthropic Messages
// API via anthropic-sdk-go, the second chat binding alongside the
// OpenAI-compatible default.
package anthropic

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"noema/internal/config"
	"noema/internal/llm"
	"noema/internal/observability"
)

// Client adapts anthropic-sdk-go to llm.Provider.
type Client struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// New constructs a Client from the chat configuration.
func New(cfg config.ChatConfig) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		sdk:       anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: 4096,
		timeout:   timeout,
	}
}

// Complete implements llm.Provider. Anthropic's Messages API splits the
// system prompt out of the message list, so every system-role message is
// lifted, joined by blank lines, into the request's top-level System field.
func (c *Client) Complete(ctx context.Context, model string, msgs []llm.Message, schema *llm.ResponseSchema) (string, error) {
	if model == "" {
		model = c.model
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := llm.StartRequestSpan(ctx, "Anthropic Complete", model, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)

	var system string
	turns := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case "assistant":
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(userBlocks(m)...))
		}
	}
	if schema != nil {
		system += fmt.Sprintf("\n\nRespond with JSON only, matching this schema exactly: %v", schema.Schema)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: c.maxTokens,
		Messages:  turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	log := observability.LoggerWithTrace(ctx)
	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", model).Dur("duration", dur).Msg("anthropic_complete_error")
		span.RecordError(err)
		return "", err
	}

	var out string
	for _, block := range resp.Content {
		if text := block.Text; text != "" {
			out += text
		}
	}
	llm.RecordTokenAttributes(span, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens), int(resp.Usage.InputTokens+resp.Usage.OutputTokens))
	llm.RecordTokenMetrics(ctx, model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))
	llm.LogRedactedResponse(ctx, resp.Content)
	log.Debug().Str("model", model).Dur("duration", dur).Msg("anthropic_complete_ok")
	return out, nil
}

func userBlocks(m llm.Message) []anthropic.ContentBlockParamUnion {
	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)}
	for _, img := range m.Images {
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MimeType, base64.StdEncoding.EncodeToString(img.Data)))
	}
	return blocks
}
