// Package parser wraps an HTML snapshot with CSS (goquery) and XPath
// (htmlquery) lookups.
package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"

	"github.com/IshaanNene/ShopSense/internal/types"
)

// Document is a parsed HTML page.
type Document struct {
	URL string
	doc *goquery.Document
}

// NewDocument parses raw HTML taken from url.
func NewDocument(url, body string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, &types.ParseError{URL: url, Err: err}
	}
	return &Document{URL: url, doc: doc}, nil
}

// FromResponse parses the body of an HTTP response.
func FromResponse(resp *types.Response) (*Document, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: resp.URL, Err: err}
	}
	return &Document{URL: resp.URL, doc: doc}, nil
}

// Find returns the selection matching a CSS selector.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// Texts returns the trimmed, non-empty text of every element matching
// selector, in document order.
func (d *Document) Texts(selector string) []string {
	return Texts(d.doc.Find(selector))
}

// Texts returns the trimmed, non-empty text of each node in s.
func Texts(s *goquery.Selection) []string {
	out := make([]string, 0, s.Length())
	s.Each(func(_ int, sel *goquery.Selection) {
		if t := strings.TrimSpace(sel.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

// XPathText evaluates expr relative to each node of s and returns the
// trimmed inner text of the first match. The bool is false when nothing
// matched.
func XPathText(s *goquery.Selection, expr string) (string, bool, error) {
	for _, node := range s.Nodes {
		found, err := htmlquery.Query(node, expr)
		if err != nil {
			return "", false, &types.ParseError{Selector: expr, Err: err}
		}
		if found != nil {
			return strings.TrimSpace(htmlquery.InnerText(found)), true, nil
		}
	}
	return "", false, nil
}
