// Package record holds the lake record document model and the augmentation
// applied to every object passing through the transformer.
package record

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// ContentType is declared on every object written to the lake bucket.
const ContentType = "application/json"

const (
	processedPrefix = "processed/"

	processedAtField = "processed_at"
	processedField   = "processed"
)

// Document is a single lake record. No schema is enforced beyond the
// content being a JSON object.
type Document map[string]interface{}

// ParseError wraps a decode failure so callers can tell unparseable content
// apart from retrieval and write failures.
type ParseError struct {
	err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("content is not a JSON object: %v", e.err)
}

func (e *ParseError) Unwrap() error {
	return e.err
}

// Parse decodes raw object content into a Document.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{err: err}
	}
	if doc == nil {
		return nil, &ParseError{err: errors.New("document is null")}
	}
	return doc, nil
}

// Augment stamps the document with the processing time (UTC, ISO-8601) and
// the processed flag. All other fields are left untouched.
func (d Document) Augment(now time.Time) {
	d[processedAtField] = now.UTC().Format(time.RFC3339)
	d[processedField] = true
}

// Encode serializes the document for the destination write.
func (d Document) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// ProcessedKey derives the destination key for a source key. The mapping is
// deterministic, so re-processing the same key overwrites the prior output.
func ProcessedKey(sourceKey string) string {
	return processedPrefix + sourceKey
}
