package ingestion

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// InferredMetadata holds the provenance inferred from a document location.
// It is attached to every chunk so answers can be traced back to a page.
type InferredMetadata struct {
	// Source is the location exactly as given.
	Source string
	// Host is the lower-cased hostname for remote sources, empty for files.
	Host string
	// File is the last path element: the page slug or the file name.
	File string
	// Section is the first meaningful path segment below any docs prefix,
	// e.g. "billing" for /docs/billing/refunds.
	Section string
	// DocType classifies the page (reference, guide, faq, api, changelog).
	DocType string
}

// Map returns the metadata as chunk metadata. Empty fields are omitted.
func (m InferredMetadata) Map() map[string]any {
	out := map[string]any{"source": m.Source, "doc_type": m.DocType}
	if m.Host != "" {
		out["host"] = m.Host
	}
	if m.File != "" {
		out["file"] = m.File
	}
	if m.Section != "" {
		out["section"] = m.Section
	}
	return out
}

// docPrefixes are leading path segments that carry no section information.
var docPrefixes = map[string]bool{
	"docs": true, "doc": true, "documentation": true, "help": true,
	"support": true, "en": true, "en-us": true, "latest": true,
}

// docTypeSegments maps path segments to the doc type they imply. The first
// matching segment wins.
var docTypeSegments = map[string]string{
	"guide":           "guide",
	"guides":          "guide",
	"tutorial":        "guide",
	"tutorials":       "guide",
	"getting-started": "guide",
	"quick-start":     "guide",
	"how-to":          "guide",
	"faq":             "faq",
	"faqs":            "faq",
	"troubleshooting": "faq",
	"api":             "api",
	"api-reference":   "api",
	"changelog":       "changelog",
	"release-notes":   "changelog",
	"releases":        "changelog",
	"reference":       "reference",
}

// InferMetadata inspects a URL or file path and returns best-effort
// provenance. Unknown layouts fall back to doc type "reference".
//
// Examples:
//
//	https://docs.example.com/docs/billing/refunds -> host docs.example.com, section billing, file refunds
//	https://example.com/help/faq/login            -> section faq, doc type faq
//	./kb/guides/setup.md                          -> section kb, file setup.md, doc type guide
func InferMetadata(location string) InferredMetadata {
	m := InferredMetadata{Source: location, DocType: "reference"}
	if strings.TrimSpace(location) == "" {
		return m
	}

	var segments []string
	if u, err := url.Parse(location); err == nil && u.Host != "" {
		m.Host = strings.ToLower(u.Hostname())
		segments = trimSegments(strings.ToLower(u.Path))
		if len(segments) > 0 {
			m.File = segments[len(segments)-1]
		}
	} else {
		p := filepath.ToSlash(filepath.Clean(location))
		m.File = path.Base(p)
		segments = trimSegments(strings.ToLower(path.Dir(p)))
	}

	m.Section = section(segments, m.File)
	for _, seg := range segments {
		if t, ok := docTypeSegments[seg]; ok {
			m.DocType = t
			break
		}
	}
	return m
}

// section returns the first segment that is neither a docs prefix nor the
// file itself.
func section(segments []string, file string) string {
	for i, seg := range segments {
		if docPrefixes[seg] {
			continue
		}
		if i == len(segments)-1 && strings.EqualFold(seg, file) {
			return ""
		}
		return seg
	}
	return ""
}

// trimSegments splits a path into non-empty segments, dropping "." and "..".
func trimSegments(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s != "" && s != "." && s != ".." {
			out = append(out, s)
		}
	}
	return out
}
