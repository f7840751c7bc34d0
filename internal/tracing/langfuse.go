// Package tracing wires optional Langfuse tracing into eino's global
// callback chain so planner and generator calls show up as traces.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// Setup initialises the Langfuse callback handler if LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are set. It returns the handler, a flush function that
// must be called before process exit, and whether tracing is enabled. When
// Langfuse is not configured the handler and flusher are nil.
func Setup() (callbacks.Handler, func(), bool) {
	host := os.Getenv("LANGFUSE_HOST")
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")

	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}
	if host == "" {
		host = "https://cloud.langfuse.com"
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
		Name:      "supportbot",
	})

	return handler, flusher, true
}

// Install registers the Langfuse handler globally when configured and
// returns the flush function, which is a no-op when tracing is disabled.
func Install() (flush func(), enabled bool) {
	handler, flusher, ok := Setup()
	if !ok {
		return func() {}, false
	}
	callbacks.AppendGlobalHandlers(handler)
	return flusher, true
}
