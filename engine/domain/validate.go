package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// MinContentLength is the minimum number of characters a document's
// normalized content must have to be ingested.
const MinContentLength = 50

// Checksum returns the hex-encoded SHA-256 digest of normalized document
// content. It is the deduplication key: two documents with the same checksum
// are the same document, whatever their titles say.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ValidateIngest checks an ingestion request against the normalized content
// that will actually be stored. Placeholder content produced for binary
// uploads skips the length check: storing a short placeholder is the
// documented degraded mode, not a caller error.
func ValidateIngest(req IngestRequest, normalized string, placeholder bool) error {
	if strings.TrimSpace(req.Title) == "" {
		return NewValidationError("title", req.Title, errors.New("title is empty"))
	}
	if !ValidDocTypes[req.DocType] {
		return NewValidationError("doc_type", string(req.DocType), ErrInvalidDocType)
	}
	if !ValidLanguages[req.Language] {
		return NewValidationError("language", string(req.Language), ErrInvalidLanguage)
	}
	if !placeholder && len(normalized) < MinContentLength {
		return NewValidationError("content", truncate(normalized, 40), ErrContentTooShort)
	}
	return nil
}

// ValidateQuery checks a search query string.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return NewValidationError("query", query, ErrEmptyQuery)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
