// internal/engine/extract/extract.go
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/law-makers/cvpress/internal/engine"
)

// Format selects how each matched element becomes record content.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat accepts "", text, markdown (md) and html.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported format %q (use: text, markdown, html)", s)
	}
}

// Query selects the elements to extract.
type Query struct {
	Selector string
	Format   Format
	// BaseURL resolves relative links in markdown output.
	BaseURL string
}

// Record is one extracted element. ID is its 1-based position among the
// non-empty matches of this extraction only; it is not a stable key.
type Record struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}

// Compile validates the query's selector.
func (q Query) Compile() (cascadia.Selector, error) {
	if strings.TrimSpace(q.Selector) == "" {
		return nil, engine.NewEngineError(engine.ErrCodeConfiguration, "extraction query has no selector", nil)
	}
	sel, err := cascadia.Compile(q.Selector)
	if err != nil {
		return nil, engine.NewEngineError(engine.ErrCodeConfiguration, fmt.Sprintf("invalid selector %q", q.Selector), err)
	}
	return sel, nil
}

// Extract claims s and runs q against its loaded DOM. The page is only read.
// Zero matches yield an empty, non-nil slice.
func Extract(ctx context.Context, s *engine.Session, q Query) ([]Record, error) {
	matcher, err := q.Compile()
	if err != nil {
		return nil, err
	}
	if err := s.Claim("extractor"); err != nil {
		return nil, err
	}

	html, err := s.Snapshot(ctx)
	if err != nil {
		if engine.CodeOf(err) != "" {
			return nil, err
		}
		return nil, engine.NewEngineError(engine.ErrCodeExtraction, "failed to read page DOM", err)
	}

	records, err := fromHTML(html, matcher, q)
	if err != nil {
		return nil, err
	}

	s.Logger().Debug().
		Str("selector", q.Selector).
		Int("records", len(records)).
		Msg("Extraction complete")
	return records, nil
}

// FromHTML runs q against a serialized document.
func FromHTML(html string, q Query) ([]Record, error) {
	matcher, err := q.Compile()
	if err != nil {
		return nil, err
	}
	return fromHTML(html, matcher, q)
}

func fromHTML(html string, matcher cascadia.Selector, q Query) ([]Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, engine.NewEngineError(engine.ErrCodeExtraction, "failed to parse page DOM", err)
	}

	var conv *converter
	if q.Format == FormatMarkdown {
		conv = newConverter(q.BaseURL)
	}

	records := []Record{}
	var convErr error
	doc.FindMatcher(matcher).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var content string
		switch q.Format {
		case FormatMarkdown:
			content, convErr = conv.convert(sel)
			if convErr != nil {
				return false
			}
		case FormatHTML:
			content, convErr = cleanHTML(sel)
			if convErr != nil {
				return false
			}
		default:
			content = strings.TrimSpace(sel.Text())
		}

		if content == "" {
			return true
		}
		records = append(records, Record{ID: len(records) + 1, Content: content})
		return true
	})
	if convErr != nil {
		return nil, engine.NewEngineError(engine.ErrCodeExtraction, "failed to convert element", convErr).
			WithDetail("format", string(q.Format))
	}

	return records, nil
}
