package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"noema/internal/apperr"
	"noema/internal/config"
	"noema/internal/model"
)

func TestValidateInput_AcceptsWithinLimits(t *testing.T) {
	limits := config.IngestLimits{MaxFiles: 5, MaxContentBytes: 100, MaxContextBytes: 50, MaxCategoryBytes: 20}
	err := ValidateInput(limits, model.IngestionPayload{Text: "short", Context: "ctx", Category: "reading"})
	assert.NoError(t, err)
}

func TestValidateInput_RejectsTooManyFiles(t *testing.T) {
	limits := config.IngestLimits{MaxFiles: 1}
	err := ValidateInput(limits, model.IngestionPayload{FileIDs: []string{"a", "b"}})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestValidateInput_RejectsOversizedContent(t *testing.T) {
	limits := config.IngestLimits{MaxContentBytes: 4}
	err := ValidateInput(limits, model.IngestionPayload{Text: "way too long"})
	assert.Equal(t, apperr.PayloadTooLarge, apperr.KindOf(err))
}

func TestValidateInput_ZeroLimitsDisableChecks(t *testing.T) {
	err := ValidateInput(config.IngestLimits{}, model.IngestionPayload{Text: "anything", FileIDs: []string{"a", "b", "c"}})
	assert.NoError(t, err)
}

func TestValidateInput_RejectsNoFilesAndNoContent(t *testing.T) {
	err := ValidateInput(config.IngestLimits{}, model.IngestionPayload{})
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestValidateInput_RejectsSingleCharContentWithNoFiles(t *testing.T) {
	err := ValidateInput(config.IngestLimits{}, model.IngestionPayload{Text: "x"})
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestValidateInput_AcceptsURLWithNoTextOrFiles(t *testing.T) {
	err := ValidateInput(config.IngestLimits{}, model.IngestionPayload{URL: "https://example.com/a"})
	assert.NoError(t, err)
}

func TestValidateInput_AcceptsFilesWithNoTextContent(t *testing.T) {
	err := ValidateInput(config.IngestLimits{}, model.IngestionPayload{FileIDs: []string{"a"}})
	assert.NoError(t, err)
}
