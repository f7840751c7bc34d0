package ingestion

import (
	"fmt"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// extracted is the readable content of one document.
type extracted struct {
	Title string
	Text  string
}

// extractHTML selects the documentation body of an HTML page, strips
// navigation chrome and converts what is left to Markdown so paragraph and
// line breaks survive for the splitter.
func (l *Loader) extractHTML(page string) (*extracted, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	sel := doc.Find(l.cfg.ContentSelector)
	if sel.Length() == 0 {
		sel = doc.Find("body")
	}
	sel.Find("script, style, noscript").Remove()
	for _, strip := range l.cfg.StripSelectors {
		sel.Find(strip).Remove()
	}

	var parts []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if h, err := goquery.OuterHtml(s); err == nil {
			parts = append(parts, h)
		}
	})

	text, err := l.converter.ConvertString(strings.Join(parts, "\n"))
	if err != nil {
		return nil, fmt.Errorf("convert html: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("no text content")
	}
	return &extracted{Title: title, Text: text}, nil
}

// newConverter returns the HTML to Markdown converter used for pages.
func newConverter() *md.Converter {
	return md.NewConverter("", true, nil)
}

// fileKind classifies a local file by extension.
type fileKind int

const (
	kindUnsupported fileKind = iota
	kindText
	kindHTML
)

// kindOf maps a file name onto how its content is read.
func kindOf(name string) fileKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".markdown", ".text", ".rst", "":
		return kindText
	case ".html", ".htm":
		return kindHTML
	default:
		return kindUnsupported
	}
}

// looksLikeHTML reports whether a fetched body should go through the HTML
// path, based on its content type or, failing that, its first bytes.
func looksLikeHTML(contentType, body string) bool {
	if ct := strings.ToLower(contentType); strings.Contains(ct, "html") {
		return true
	} else if ct != "" && !strings.HasPrefix(ct, "application/octet-stream") {
		return false
	}
	head := strings.ToLower(strings.TrimSpace(body[:min(len(body), 512)]))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}
