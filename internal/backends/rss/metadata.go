package rss

import (
	"fmt"
	"time"

	"github.com/araddon/dateparse"

	"github.com/ElvertMora/grimoirelab-perceval/internal/feed"
)

// FieldMissingError reports an entry lacking a field the envelope requires.
type FieldMissingError struct {
	Field string
}

func (e *FieldMissingError) Error() string {
	return fmt.Sprintf("entry has no %s field", e.Field)
}

// DateParseError reports a published value that could not be turned into a
// timestamp.
type DateParseError struct {
	Value string
	Err   error
}

func (e *DateParseError) Error() string {
	if e.Value == "" {
		return "entry has no published date"
	}
	return fmt.Sprintf("parse published date %q: %v", e.Value, e.Err)
}

func (e *DateParseError) Unwrap() error {
	return e.Err
}

// Identifier returns the unique identifier of an entry, its link.
func Identifier(entry feed.Entry) (string, error) {
	if entry.Link == "" {
		return "", &FieldMissingError{Field: "link"}
	}
	return entry.Link, nil
}

// UpdatedOn returns the update time of an entry as UTC UNIX seconds. The
// published field accepts the usual feed date shapes; dateparse does the
// format detection. Timestamps without an offset are read as UTC.
func UpdatedOn(entry feed.Entry) (float64, error) {
	if entry.Published == "" {
		return 0, &DateParseError{Value: ""}
	}
	parsed, err := dateparse.ParseIn(entry.Published, time.UTC)
	if err != nil {
		return 0, &DateParseError{Value: entry.Published, Err: err}
	}
	parsed = parsed.UTC()
	return float64(parsed.Unix()) + float64(parsed.Nanosecond())/1e9, nil
}

// Category returns the item category. This backend only produces entries.
func Category(entry feed.Entry) string {
	_ = entry
	return CategoryEntry
}
