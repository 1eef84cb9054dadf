package extract

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"

	"noema/internal/apperr"
	"noema/internal/llm"
)

const analyzeImagePrompt = "Analyze this image."

// dispatchMime routes a file payload to its decoder by mime type.
func dispatchMime(ctx context.Context, mimeType string, data []byte, deps Deps) (string, error) {
	switch {
	case mimeType == "text/plain", mimeType == "text/markdown",
		mimeType == "application/octet-stream", mimeType == "text/x-rust":
		return strings.TrimSpace(string(data)), nil

	case mimeType == "application/pdf":
		return extractPDF(ctx, data, deps)

	case mimeType == "image/png", mimeType == "image/jpeg":
		return describeImage(ctx, mimeType, data, deps)

	case strings.HasPrefix(mimeType, "audio/"):
		return transcribeAudio(ctx, mimeType, data, deps)

	default:
		return "", apperr.New(apperr.Validation, fmt.Sprintf("unsupported mime type: %s", mimeType))
	}
}

// extractPDF reads the PDF text layer via ledongthuc/pdf; when that layer is
// empty or whitespace-only (a scanned document with no embedded text), it
// falls back to rasterizing each page with go-fitz and describing the pages
// through the chat provider's vision capability.
func extractPDF(ctx context.Context, data []byte, deps Deps) (string, error) {
	if text, err := pdfTextLayer(data); err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	return pdfPagesViaVLM(ctx, data, deps)
}

func pdfTextLayer(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func pdfPagesViaVLM(ctx context.Context, data []byte, deps Deps) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", apperr.Wrap(apperr.Validation, "open pdf for rasterization", err)
	}
	defer doc.Close()

	var sb strings.Builder
	pages := doc.NumPage()
	for i := 0; i < pages; i++ {
		img, err := doc.Image(i)
		if err != nil {
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			continue
		}
		desc, err := deps.Provider.Complete(ctx, "", []llm.Message{{
			Role:    "user",
			Content: analyzeImagePrompt,
			Images:  []llm.ImagePart{{MimeType: "image/png", Data: buf.Bytes()}},
		}}, nil)
		if err != nil {
			return "", apperr.Wrap(apperr.Transient, "describe pdf page", err)
		}
		fmt.Fprintf(&sb, "## Page %d\n\n%s\n\n", i+1, strings.TrimSpace(desc))
	}
	return strings.TrimSpace(sb.String()), nil
}

func describeImage(ctx context.Context, mimeType string, data []byte, deps Deps) (string, error) {
	desc, err := deps.Provider.Complete(ctx, "", []llm.Message{{
		Role:    "user",
		Content: analyzeImagePrompt,
		Images:  []llm.ImagePart{{MimeType: mimeType, Data: data}},
	}}, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.Transient, "describe image", err)
	}
	return strings.TrimSpace(desc), nil
}

// transcribeAudio prefers the local whisper.cpp binding when a model path
// is configured, falling back to the chat provider's Transcriber capability
// (an OpenAI-compatible /audio/transcriptions endpoint) otherwise.
func transcribeAudio(ctx context.Context, mimeType string, data []byte, deps Deps) (string, error) {
	if deps.Config.WhisperModelPath != "" {
		text, err := transcribeWithWhisper(deps.Config.WhisperModelPath, data)
		if err != nil {
			return "", apperr.Wrap(apperr.Transient, "whisper transcribe", err)
		}
		return text, nil
	}
	t, ok := deps.Provider.(llm.Transcriber)
	if !ok {
		return "", apperr.New(apperr.Validation, "chat provider does not support audio transcription")
	}
	text, err := t.Transcribe(ctx, "", llm.AudioPart{MimeType: mimeType, Data: data})
	if err != nil {
		return "", apperr.Wrap(apperr.Transient, "transcribe audio", err)
	}
	return strings.TrimSpace(text), nil
}
