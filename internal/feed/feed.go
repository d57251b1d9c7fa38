package feed

import (
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
)

// Entry is one feed item as it appeared in the document, before any envelope
// metadata is attached. Values are carried verbatim; Published stays a raw
// string so date interpretation happens exactly once, at envelope time.
type Entry struct {
	Link       string            `json:"link"`
	Published  string            `json:"published"`
	Updated    string            `json:"updated,omitempty"`
	Title      string            `json:"title,omitempty"`
	Summary    string            `json:"summary,omitempty"`
	Content    string            `json:"content,omitempty"`
	GUID       string            `json:"guid,omitempty"`
	Author     string            `json:"author,omitempty"`
	Categories []string          `json:"categories,omitempty"`
	Custom     map[string]string `json:"custom,omitempty"`
}

// ParseError reports a payload that could not be decoded as text at all.
// Malformed-but-decodable documents are not errors here; they parse to zero
// entries instead.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse feed: " + e.Reason
}

// Parser extracts entries from raw RSS or Atom documents. gofeed does the
// format detection, so both arrive through the same path.
type Parser struct {
	gf *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{gf: gofeed.NewParser()}
}

// Parse returns the payload's entries in document order. Payloads gofeed
// cannot make sense of (empty input, wrong root element, truncated XML)
// produce an empty slice and a nil error; only a payload that is not valid
// text fails with *ParseError.
func (p *Parser) Parse(raw string) ([]Entry, error) {
	if !utf8.ValidString(raw) {
		return nil, &ParseError{Reason: "payload is not decodable as text"}
	}

	parsed, err := p.gf.ParseString(raw)
	if err != nil || parsed == nil {
		return []Entry{}, nil
	}

	entries := make([]Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, entryFromItem(item))
	}
	return entries, nil
}

func entryFromItem(item *gofeed.Item) Entry {
	e := Entry{
		Link:       item.Link,
		Published:  item.Published,
		Updated:    item.Updated,
		Title:      item.Title,
		Summary:    item.Description,
		Content:    item.Content,
		GUID:       item.GUID,
		Categories: item.Categories,
		Custom:     item.Custom,
	}
	if item.Author != nil {
		e.Author = item.Author.Name
	}
	return e
}
