package ingestion

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the loader configuration. Zero values are replaced by the
// defaults documented on each field.
type Config struct {
	// ChunkSize is the maximum chunk length in characters. Defaults to 1000.
	ChunkSize int

	// ChunkOverlap is the number of trailing characters of a chunk that may
	// be repeated at the start of the next one. Defaults to 200; negative
	// disables overlap.
	ChunkOverlap int

	// Separators are tried coarsest first when splitting. Defaults to
	// paragraph break, line break and sentence-ending punctuation.
	Separators []string

	// ContentSelector picks the documentation body out of an HTML page.
	// When it matches nothing the whole <body> is used. Defaults to
	// ".docs-content".
	ContentSelector string

	// StripSelectors are removed from the selected content before
	// conversion. Defaults to nav, footer and edit-page links.
	StripSelectors []string

	// HTTPTimeout bounds each remote fetch. Defaults to 30s.
	HTTPTimeout time.Duration

	// UserAgent is sent with remote fetches.
	UserAgent string

	// FetchRate is the sustained number of remote fetches per second.
	// Defaults to 2; negative disables pacing.
	FetchRate float64

	// FetchBurst is the number of fetches allowed back to back. Defaults to 1.
	FetchBurst int

	// Concurrency bounds parallel source loads. Defaults to 4.
	Concurrency int

	// MaxBodyBytes caps the size of a fetched page or read file.
	// Defaults to 5 MiB.
	MaxBodyBytes int64
}

// DefaultSeparators split on paragraphs, then lines, then sentences.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? "}

// defaultStripSelectors remove navigation chrome from documentation pages.
var defaultStripSelectors = []string{"nav", "footer", ".edit-page-link"}

// withDefaults returns a copy of cfg with every zero field defaulted. It is
// applied once, by NewLoader.
func (cfg *Config) withDefaults() *Config {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	switch {
	case c.ChunkOverlap < 0:
		c.ChunkOverlap = 0
	case c.ChunkOverlap == 0:
		c.ChunkOverlap = 200
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 10
	}
	if len(c.Separators) == 0 {
		c.Separators = DefaultSeparators
	}
	if c.ContentSelector == "" {
		c.ContentSelector = ".docs-content"
	}
	if c.StripSelectors == nil {
		c.StripSelectors = defaultStripSelectors
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "supportbot-go/1.0 (documentation loader)"
	}
	if c.FetchRate == 0 {
		c.FetchRate = 2
	}
	if c.FetchBurst <= 0 {
		c.FetchBurst = 1
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 5 << 20
	}
	return &c
}

// ConfigFromEnv reads loader settings from environment variables:
//
//	CHUNK_SIZE, CHUNK_OVERLAP, CONTENT_SELECTOR, FETCH_RATE, FETCH_CONCURRENCY
//
// Unset or malformed values are left zero and defaulted by NewLoader.
func ConfigFromEnv() *Config {
	return &Config{
		ChunkSize:       getEnvInt("CHUNK_SIZE", 0),
		ChunkOverlap:    getEnvInt("CHUNK_OVERLAP", 0),
		ContentSelector: os.Getenv("CONTENT_SELECTOR"),
		FetchRate:       getEnvFloat("FETCH_RATE", 0),
		Concurrency:     getEnvInt("FETCH_CONCURRENCY", 0),
	}
}

// SourcesFromEnv parses SUPPORTBOT_SOURCES, a comma- or newline-separated
// list of URLs and file paths.
func SourcesFromEnv() []Source {
	return ParseSources(os.Getenv("SUPPORTBOT_SOURCES"))
}

// ParseSources splits a comma- or newline-separated list into sources,
// dropping blanks.
func ParseSources(list string) []Source {
	fields := strings.FieldsFunc(list, func(r rune) bool { return r == ',' || r == '\n' })
	out := make([]Source, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, Source{Location: f})
		}
	}
	return out
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
