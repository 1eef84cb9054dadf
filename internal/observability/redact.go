package observability

import (
	"encoding/json"
	"fmt"
	"strings"
)

var sensitiveKeys = []string{
	"api_key", "apikey", "apiKey", "x-api-key", "authorization", "auth", "token", "access_token", "refresh_token",
	"password", "password_hash", "secret", "bearer",
}

// inlinePayloadTruncateLen bounds how much of a single string value
// RedactJSON will keep inline. Chat/transcription calls (llm.Message's
// ImagePart/AudioPart, marshaled as base64) and extraction of uploaded
// PDFs/images/audio can carry megabyte-scale inline payloads; logging them
// verbatim at debug level would make `llm_request`/`llm_response` log lines
// useless for grepping and would defeat redaction's own purpose by burying
// it in noise.
const inlinePayloadTruncateLen = 2048

// RedactJSON takes a JSON payload and redacts sensitive values based on
// common key names, and truncates any long string value (inline base64
// image/audio attachments, large extracted document text) so a single
// multimodal request or response doesn't dominate the log stream.
func RedactJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	redacted := redactValue("", v)
	b, err := json.Marshal(redacted)
	if err != nil {
		return raw
	}
	return b
}

func redactValue(key string, v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, vv := range val {
			if isSensitiveKey(k) {
				val[k] = "[REDACTED]"
			} else {
				val[k] = redactValue(k, vv)
			}
		}
		return val
	case []any:
		for i := range val {
			val[i] = redactValue(key, val[i])
		}
		return val
	case string:
		if isSensitiveKey(key) {
			return "[REDACTED]"
		}
		if len(val) > inlinePayloadTruncateLen {
			return fmt.Sprintf("[TRUNCATED %d bytes]", len(val))
		}
		return val
	default:
		return v
	}
}

func isSensitiveKey(k string) bool {
	low := strings.ToLower(k)
	for _, s := range sensitiveKeys {
		if low == s {
			return true
		}
		// contains common header forms
		if strings.Contains(low, s) {
			return true
		}
	}
	return false
}

