package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewContextHasIDs(t *testing.T) {
	tc := New()

	if len(tc.TraceID) != 32 {
		t.Errorf("TraceID length = %d, want 32", len(tc.TraceID))
	}
	if len(tc.SpanID) != 16 {
		t.Errorf("SpanID length = %d, want 16", len(tc.SpanID))
	}
	if tc.ParentSpanID != "" {
		t.Errorf("ParentSpanID = %q, want empty", tc.ParentSpanID)
	}
}

func TestNewChildLinksParent(t *testing.T) {
	parent := New()
	child := NewChild(parent)

	if child.TraceID != parent.TraceID {
		t.Error("child should share parent trace ID")
	}
	if child.ParentSpanID != parent.SpanID {
		t.Error("child parent span should be parent's span")
	}
	if child.SpanID == parent.SpanID {
		t.Error("child should get a fresh span ID")
	}
}

func TestEnsureContext(t *testing.T) {
	ctx := context.Background()

	ctx, tc := EnsureContext(ctx)
	if tc.TraceID == "" {
		t.Fatal("expected a trace ID")
	}

	// Second call reuses the existing context.
	_, tc2 := EnsureContext(ctx)
	if tc2.TraceID != tc.TraceID {
		t.Error("EnsureContext should not replace an existing trace")
	}
}

func TestStartSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "capture")
	span.SetAttr("mode", "fullscreen")
	span.End()

	if span.Name != "capture" {
		t.Errorf("span name = %q, want %q", span.Name, "capture")
	}
	if span.Attrs["mode"] != "fullscreen" {
		t.Error("attribute not recorded")
	}
	if span.Duration() < 0 {
		t.Error("duration should be non-negative")
	}

	tc, ok := FromContext(ctx)
	if !ok || tc.TraceID == "" {
		t.Error("span context should be injected")
	}
}

func TestMiddlewarePropagatesHeader(t *testing.T) {
	var seen Context
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/status", http.NoBody)
	req.Header.Set(TraceIDKey, "0123456789abcdef0123456789abcdef")
	req.Header.Set(SpanIDKey, "0123456789abcdef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen.TraceID != "0123456789abcdef0123456789abcdef" {
		t.Errorf("trace ID = %q, want propagated header", seen.TraceID)
	}
	if seen.ParentSpanID != "0123456789abcdef" {
		t.Errorf("parent span = %q, want caller's span", seen.ParentSpanID)
	}
}

func TestMiddlewareCreatesTrace(t *testing.T) {
	var seen Context
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/status", http.NoBody)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen.TraceID == "" {
		t.Error("middleware should mint a trace ID when none is supplied")
	}
}
