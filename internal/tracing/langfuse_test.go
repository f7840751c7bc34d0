package tracing

import "testing"

func TestSetup_DisabledWithoutKeys(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk-lf-test")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	handler, flush, ok := Setup()
	if ok || handler != nil || flush != nil {
		t.Errorf("Setup() = %v, %v, %v; want disabled", handler, flush != nil, ok)
	}

	flushFn, enabled := Install()
	if enabled {
		t.Error("Install reported tracing enabled without a secret key")
	}
	flushFn() // must be safe to call when disabled
}
