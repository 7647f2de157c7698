// Package extract pulls notice fields out of parsed HTML detail pages.
package extract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Locator tries to find one logical field in a document.
type Locator interface {
	TryExtract(doc *goquery.Selection) (string, bool)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(doc *goquery.Selection) (string, bool)

// TryExtract calls f.
func (f LocatorFunc) TryExtract(doc *goquery.Selection) (string, bool) { return f(doc) }

// Field is a named value with ordered fallback locators and a sentinel for misses.
type Field struct {
	Name     string
	Missing  string
	Locators []Locator
}

// Extract returns the first non-empty locator match, or f.Missing.
func (f Field) Extract(doc *goquery.Selection) string {
	if doc == nil {
		return f.Missing
	}
	for _, loc := range f.Locators {
		if loc == nil {
			continue
		}
		if v, ok := loc.TryExtract(doc); ok {
			if v = CollapseSpace(v); v != "" {
				return v
			}
		}
	}
	return f.Missing
}

// Found reports whether v is a real match rather than the sentinel.
func (f Field) Found(v string) bool {
	return v != f.Missing
}

// ParseHTML parses a page body into a selection rooted at the document.
func ParseHTML(body []byte) (*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc.Selection, nil
}

// CollapseSpace trims s and folds internal whitespace runs to a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Selector matches the text of the first element for a CSS selector.
type Selector string

// TryExtract implements Locator.
func (s Selector) TryExtract(doc *goquery.Selection) (string, bool) {
	sel := doc.Find(string(s)).First()
	if sel.Length() == 0 {
		return "", false
	}
	text := strings.TrimSpace(sel.Text())
	return text, text != ""
}

// Attr matches an attribute of the first element for a CSS selector.
type Attr struct {
	Selector string
	Name     string
}

// TryExtract implements Locator.
func (a Attr) TryExtract(doc *goquery.Selection) (string, bool) {
	v, ok := doc.Find(a.Selector).First().Attr(a.Name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// LabeledCell scans table rows and returns the second cell of the first row
// whose first cell label satisfies Match.
type LabeledCell struct {
	Match func(label string) bool
}

// TryExtract implements Locator.
func (l LabeledCell) TryExtract(doc *goquery.Selection) (string, bool) {
	if l.Match == nil {
		return "", false
	}
	var out string
	doc.Find("table tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return true
		}
		label := CollapseSpace(cells.Eq(0).Text())
		if !l.Match(label) {
			return true
		}
		out = strings.TrimSpace(cells.Eq(1).Text())
		return out == ""
	})
	return out, out != ""
}

// LabelAny matches labels containing any of the given words.
func LabelAny(words ...string) func(string) bool {
	return func(label string) bool {
		for _, w := range words {
			if strings.Contains(label, w) {
				return true
			}
		}
		return false
	}
}

// LabelAll matches labels containing every given word.
func LabelAll(words ...string) func(string) bool {
	return func(label string) bool {
		for _, w := range words {
			if !strings.Contains(label, w) {
				return false
			}
		}
		return len(words) > 0
	}
}

// KeywordBlock returns the text of the first element matching Selector (div by
// default) that is longer than MinRunes and mentions any of Keywords.
type KeywordBlock struct {
	Selector string
	MinRunes int
	Keywords []string
}

// TryExtract implements Locator.
func (k KeywordBlock) TryExtract(doc *goquery.Selection) (string, bool) {
	selector := k.Selector
	if selector == "" {
		selector = "div"
	}
	var out string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := CollapseSpace(s.Text())
		if utf8.RuneCountInString(text) <= k.MinRunes {
			return true
		}
		for _, kw := range k.Keywords {
			if strings.Contains(text, kw) {
				out = text
				return false
			}
		}
		return true
	})
	return out, out != ""
}

// Transform post-processes another locator's match. An empty result counts as a miss.
type Transform struct {
	Locator Locator
	Fn      func(string) string
}

// TryExtract implements Locator.
func (t Transform) TryExtract(doc *goquery.Selection) (string, bool) {
	if t.Locator == nil {
		return "", false
	}
	v, ok := t.Locator.TryExtract(doc)
	if !ok {
		return "", false
	}
	if t.Fn != nil {
		v = strings.TrimSpace(t.Fn(v))
	}
	return v, v != ""
}

// CutBefore returns a transform function keeping the text before marker.
func CutBefore(marker string) func(string) string {
	return func(s string) string {
		before, _, _ := strings.Cut(s, marker)
		return before
	}
}
