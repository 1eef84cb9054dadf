package llm

import "context"

// Message is one turn passed to a chat provider. Role is "system", "user",
// or "assistant". Images/Audio carry inline multimodal payloads for the
// image-description and transcription paths extract uses; a provider
// that can't accept a modality ignores it.
type Message struct {
	Role    string
	Content string
	Images  []ImagePart
	Audio   *AudioPart
}

// ImagePart is an inline image attachment. Data is raw (not base64) bytes;
// providers that need base64 (OpenAI's chat API) encode it themselves.
type ImagePart struct {
	MimeType string
	Data     []byte
}

// AudioPart is an inline audio attachment for transcription requests.
type AudioPart struct {
	MimeType string
	Data     []byte
}

// ResponseSchema describes the JSON Schema document Complete's output is
// requested to match. The OpenAI binding sends it as a json_schema response
// format; the Anthropic binding appends it to the system prompt. Neither
// binding validates the reply against it: a non-conforming reply is returned
// to the caller as is.
type ResponseSchema struct {
	Name   string
	Schema map[string]any
	Strict bool
}

// Provider is the chat provider's single entry point: complete(model, messages,
// response_schema?) -> text | structured_json. When schema is nil the
// return value is freeform text; when non-nil the model is asked for a JSON
// document conforming to schema, returned unvalidated as a string so the
// pipeline (not the provider) owns JSON parsing.
type Provider interface {
	Complete(ctx context.Context, model string, messages []Message, schema *ResponseSchema) (string, error)
}

// Transcriber is implemented by providers that can turn audio into text,
// for extraction's audio/* dispatch branch.
type Transcriber interface {
	Transcribe(ctx context.Context, model string, audio AudioPart) (string, error)
}
