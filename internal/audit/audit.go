// Package audit records which configuration a CLI command started with.
// Credentials are reduced to "set"/"unset" and URLs lose their userinfo, so
// the line is safe to ship to a shared log sink.
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// section groups related env vars under one slog group in the audit line.
type section struct {
	name string
	keys []string
}

var sections = []section{
	{"model", []string{
		"MODEL_PROVIDER",
		"OLLAMA_HOST", "OLLAMA_MODEL",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL",
		"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_DEPLOYMENT",
		"ARK_API_KEY", "ARK_MODEL",
		"GOOGLE_API_KEY", "GEMINI_MODEL",
	}},
	{"embedding", []string{"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_API_KEY", "EMBEDDING_ENDPOINT", "EMBEDDING_BATCH_SIZE"}},
	{"documents", []string{"SUPPORTBOT_SOURCES", "CHUNK_SIZE", "CHUNK_OVERLAP", "CONTENT_SELECTOR", "FETCH_RATE"}},
	{"assistant", []string{"SUPPORTBOT_PRODUCT_NAME", "RETRIEVE_TOP_K", "MAX_TOOL_ROUNDS", "HISTORY_DEPTH", "MAX_CONTEXT_TOKENS", "HISTORY_MAX_TURNS"}},
	{"server", []string{"SUPPORTBOT_HOST", "SUPPORTBOT_PORT", "UPLOAD_DIR", "CHAT_TIMEOUT"}},
	{"logging", []string{"LOG_LEVEL", "LOG_FORMAT"}},
	{"tracing", []string{"LANGFUSE_HOST", "LANGFUSE_PUBLIC_KEY", "LANGFUSE_SECRET_KEY"}},
}

// LogCommandStart writes one INFO line describing the command, the config
// file it loaded and the effective environment, grouped by concern.
func LogCommandStart(ctx context.Context, log *slog.Logger, command string, configPath string) {
	attrs := make([]slog.Attr, 0, len(sections)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", displayPath(configPath)),
	)
	for _, sec := range sections {
		group := make([]slog.Attr, 0, len(sec.keys))
		for _, key := range sec.keys {
			group = append(group, slog.String(key, SanitiseKey(key, os.Getenv(key))))
		}
		attrs = append(attrs, slog.Attr{Key: sec.name, Value: slog.GroupValue(group...)})
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey renders an env value for logging. Credential keys report only
// whether they are set, URL-valued keys have any password replaced, and the
// source list is reduced to its length.
func SanitiseKey(key, value string) string {
	switch {
	case value == "":
		return "unset"
	case isCredential(key):
		return "set"
	case key == "SUPPORTBOT_SOURCES":
		return strconv.Itoa(countSources(value)) + " sources"
	case isLocation(key):
		return redactURL(value)
	}
	return value
}

func isCredential(key string) bool {
	for _, suffix := range []string{"_API_KEY", "_SECRET_KEY", "_PUBLIC_KEY"} {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

func isLocation(key string) bool {
	return strings.HasSuffix(key, "_HOST") || strings.HasSuffix(key, "_URL") || strings.HasSuffix(key, "_ENDPOINT")
}

// redactURL masks the password of a URL with userinfo. Values that do not
// parse are returned unchanged.
func redactURL(v string) string {
	u, err := url.Parse(v)
	if err != nil || u.User == nil {
		return v
	}
	return u.Redacted()
}

func countSources(list string) int {
	n := 0
	for _, s := range strings.Split(list, ",") {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	return n
}

// displayPath returns "none" for an empty path and abbreviates the home
// directory to "~".
func displayPath(p string) string {
	if p == "" {
		return "none"
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		if rel, ok := strings.CutPrefix(p, home); ok {
			return "~" + rel
		}
	}
	return p
}
