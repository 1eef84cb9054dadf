package ingest

import (
	"strings"

	"noema/internal/apperr"
	"noema/internal/config"
	"noema/internal/model"
)

// ValidateInput enforces the ingress size caps before a
// task is enqueued: too many files is a 400 Validation error; any text
// field over its byte cap is a 413 PayloadTooLarge error; no files and no
// usable content (under two characters of text) is a 404 NotFound.
// This is a plain function rather than inline handler logic so it is
// unit-testable in isolation.
func ValidateInput(limits config.IngestLimits, payload model.IngestionPayload) error {
	if len(payload.FileIDs) == 0 && len(strings.TrimSpace(payload.URL)) == 0 && len(strings.TrimSpace(payload.Text)) < 2 {
		return apperr.New(apperr.NotFound, "no valid content")
	}
	if limits.MaxFiles > 0 && len(payload.FileIDs) > limits.MaxFiles {
		return apperr.New(apperr.Validation, "too many files in one ingest request")
	}
	if limits.MaxContentBytes > 0 && int64(len(payload.Text)) > limits.MaxContentBytes {
		return apperr.New(apperr.PayloadTooLarge, "content exceeds maximum size")
	}
	if limits.MaxContextBytes > 0 && int64(len(payload.Context)) > limits.MaxContextBytes {
		return apperr.New(apperr.PayloadTooLarge, "context exceeds maximum size")
	}
	if limits.MaxCategoryBytes > 0 && int64(len(payload.Category)) > limits.MaxCategoryBytes {
		return apperr.New(apperr.PayloadTooLarge, "category exceeds maximum size")
	}
	return nil
}
