package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/grpchealth"

	"github.com/byytelope/deptproxy/internal/admin"
	"github.com/byytelope/deptproxy/pkg/tablecache"
)

func newTestHandler(t *testing.T, cache *tablecache.Cache, checker *grpchealth.StaticChecker) (*Handler, *bytes.Buffer) {
	t.Helper()

	mux := http.NewServeMux()
	mux.Handle(admin.NewHandler(admin.NewService(cache)))
	mux.Handle(grpchealth.NewHandler(checker))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	return &Handler{
		client: admin.NewClient(srv.Client(), srv.URL),
		out:    &out,
		err:    &out,
	}, &out
}

func TestListAndClear(t *testing.T) {
	cache := tablecache.New(time.Minute, []string{"events", "professors"})
	_ = cache.SetJSON("professors", []string{"a"})
	h, out := newTestHandler(t, cache, grpchealth.NewStaticChecker())

	if err := h.List(); err != nil {
		t.Fatalf("List error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 || !strings.HasPrefix(lines[0], "SLOT") {
		t.Fatalf("list output: %q", out.String())
	}
	if !strings.HasPrefix(lines[2], "professors") || !strings.Contains(lines[2], "true") {
		t.Fatalf("professors line: %q", lines[2])
	}

	out.Reset()
	if err := h.Clear(); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "OK cleared 1 valid slot(s)" {
		t.Fatalf("clear output: got=%q", got)
	}
}

func TestHealthNotServing(t *testing.T) {
	checker := grpchealth.NewStaticChecker()
	checker.SetStatus("", grpchealth.StatusNotServing)
	h, out := newTestHandler(t, tablecache.New(time.Minute, nil), checker)

	if err := h.Health(""); err == nil {
		t.Fatalf("expected error when not serving")
	}
	if got := strings.TrimSpace(out.String()); got != "NOT_SERVING" {
		t.Fatalf("output: got=%q want=NOT_SERVING", got)
	}
}
