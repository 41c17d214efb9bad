package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/byytelope/deptproxy/internal/store"
)

type captured struct {
	Method  string
	Path    string
	RawPath string
	Query   string
	Headers http.Header
	Body    string
}

type fakeUpstream struct {
	mu       sync.Mutex
	requests []captured
	status   int
	body     string
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, captured{
		Method:  r.Method,
		Path:    r.URL.Path,
		RawPath: r.URL.EscapedPath(),
		Query:   r.URL.RawQuery,
		Headers: r.Header.Clone(),
		Body:    string(b),
	})
	status, body := f.status, f.body
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (f *fakeUpstream) last(t *testing.T) captured {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatalf("no upstream request recorded")
	}
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, f *fakeUpstream) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", "anon-key", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return c
}

func TestNewRejectsBadScheme(t *testing.T) {
	if _, err := New("ftp://example.com", "k"); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestUnconfiguredClient(t *testing.T) {
	c, err := New("", "")
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if c.Configured() {
		t.Fatalf("expected unconfigured client")
	}
	if _, err := c.Select(context.Background(), "Professors", store.Query{}); !errors.Is(err, store.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSelectBuildsPostgrestQuery(t *testing.T) {
	f := &fakeUpstream{body: `[{"id":1,"Name":"Ada"},{"id":2,"Name":"Grace"}]`}
	c := newTestClient(t, f)

	rows, err := c.Select(context.Background(), "Professors", store.Query{
		OrderBy: "id",
		Limit:   100,
		Filters: []store.Filter{store.Eq("Department", "IT")},
	})
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if len(rows) != 2 || rows[1]["Name"] != "Grace" {
		t.Fatalf("rows mismatch: %v", rows)
	}
	if n, ok := rows[0]["id"].(json.Number); !ok || n.String() != "1" {
		t.Fatalf("expected json.Number id, got %#v", rows[0]["id"])
	}

	req := f.last(t)
	if req.Method != http.MethodGet || req.Path != "/rest/v1/Professors" {
		t.Fatalf("unexpected request line: %s %s", req.Method, req.Path)
	}
	if req.Query != "Department=eq.IT&limit=100&order=id.asc&select=%2A" {
		t.Fatalf("query mismatch: got=%q", req.Query)
	}
	if req.Headers.Get("apikey") != "anon-key" || req.Headers.Get("Authorization") != "Bearer anon-key" {
		t.Fatalf("auth headers missing: %v", req.Headers)
	}
}

func TestSelectQuotedTableIsEscaped(t *testing.T) {
	f := &fakeUpstream{body: `[]`}
	c := newTestClient(t, f)

	rows, err := c.Select(context.Background(), `"Event"`, store.Query{OrderBy: "id", Descending: true})
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Fatalf("expected empty non-nil rows, got %#v", rows)
	}

	req := f.last(t)
	if req.RawPath != "/rest/v1/%22Event%22" {
		t.Fatalf("path mismatch: got=%q", req.RawPath)
	}
	if !strings.Contains(req.Query, "order=id.desc") {
		t.Fatalf("expected descending order, got %q", req.Query)
	}
}

func TestSelectErrorCarriesPostgrestMessage(t *testing.T) {
	f := &fakeUpstream{
		status: http.StatusNotFound,
		body:   `{"code":"42P01","message":"relation \"public.Event\" does not exist","details":null,"hint":null}`,
	}
	c := newTestClient(t, f)

	_, err := c.Select(context.Background(), "Event", store.Query{})
	var se *store.Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *store.Error, got %T %v", err, err)
	}
	if se.Status != http.StatusNotFound || se.Code != "42P01" || se.Table != "Event" {
		t.Fatalf("unexpected error fields: %+v", se)
	}
	if store.Message(err) != `relation "public.Event" does not exist` {
		t.Fatalf("message mismatch: %q", store.Message(err))
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	f := &fakeUpstream{status: http.StatusBadGateway, body: "upstream exploded"}
	c := newTestClient(t, f)

	_, err := c.Select(context.Background(), "Professors", store.Query{})
	if store.Message(err) != "upstream exploded" {
		t.Fatalf("message mismatch: %q", store.Message(err))
	}
}

func TestInsertSendsRepresentationPreference(t *testing.T) {
	f := &fakeUpstream{status: http.StatusCreated, body: `[{"id":9,"Name":"Linus"}]`}
	c := newTestClient(t, f)

	rows, err := c.Insert(context.Background(), "Professors", []store.Record{{"Name": "Linus"}})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if len(rows) != 1 || rows[0]["Name"] != "Linus" {
		t.Fatalf("rows mismatch: %v", rows)
	}

	req := f.last(t)
	if req.Method != http.MethodPost || req.Headers.Get("Prefer") != "return=representation" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Body != `[{"Name":"Linus"}]` {
		t.Fatalf("body mismatch: %s", req.Body)
	}
}

func TestUpdateAndDeleteFilters(t *testing.T) {
	f := &fakeUpstream{body: `[]`}
	c := newTestClient(t, f)

	rows, err := c.Update(context.Background(), "ITCourses", store.Record{"Name": "Go"}, store.Eq("id", "5"))
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected zero rows, got %v", rows)
	}
	if req := f.last(t); req.Method != http.MethodPatch || !strings.Contains(req.Query, "id=eq.5") {
		t.Fatalf("unexpected update request: %+v", req)
	}

	if _, err := c.Delete(context.Background(), "File_link", store.In("id", "1", "2", "a,b")); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	req := f.last(t)
	if req.Method != http.MethodDelete {
		t.Fatalf("method mismatch: %s", req.Method)
	}
	if !strings.Contains(req.Query, "id=in.%281%2C2%2C%22a%2Cb%22%29") {
		t.Fatalf("in filter mismatch: %q", req.Query)
	}
}

func TestUnfilteredWritesRejected(t *testing.T) {
	f := &fakeUpstream{}
	c := newTestClient(t, f)

	if _, err := c.Update(context.Background(), "Professors", store.Record{"a": 1}); err == nil {
		t.Fatalf("expected update without filter to fail")
	}
	if _, err := c.Delete(context.Background(), "Professors"); err == nil {
		t.Fatalf("expected delete without filter to fail")
	}
	if len(f.requests) != 0 {
		t.Fatalf("no request should reach upstream, got %d", len(f.requests))
	}
}

func TestRPC(t *testing.T) {
	f := &fakeUpstream{body: `[{"table_name":"Professors"}]`}
	c := newTestClient(t, f)

	raw, err := c.RPC(context.Background(), "get_tables", nil)
	if err != nil {
		t.Fatalf("RPC error: %v", err)
	}
	if string(raw) != `[{"table_name":"Professors"}]` {
		t.Fatalf("RPC body mismatch: %s", raw)
	}
	req := f.last(t)
	if req.Method != http.MethodPost || req.Path != "/rest/v1/rpc/get_tables" || req.Body != `{}` {
		t.Fatalf("unexpected rpc request: %+v", req)
	}
}

func TestSignIn(t *testing.T) {
	f := &fakeUpstream{body: `{"access_token":"tok","token_type":"bearer","expires_in":3600,"expires_at":1700000000,"refresh_token":"r","user":{"id":"u1","email":"a@b.c","role":"authenticated"}}`}
	c := newTestClient(t, f)

	s, err := c.SignIn(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("SignIn error: %v", err)
	}
	if s.AccessToken != "tok" || s.User.Email != "a@b.c" || s.ExpiresIn != 3600 {
		t.Fatalf("session mismatch: %+v", s)
	}

	req := f.last(t)
	if req.Path != "/auth/v1/token" || req.Query != "grant_type=password" {
		t.Fatalf("unexpected signin request: %+v", req)
	}
	if req.Body != `{"email":"a@b.c","password":"pw"}` {
		t.Fatalf("body mismatch: %s", req.Body)
	}
}

func TestSignInInvalidCredentials(t *testing.T) {
	f := &fakeUpstream{status: http.StatusBadRequest, body: `{"error":"invalid_grant","error_description":"Invalid login credentials"}`}
	c := newTestClient(t, f)

	_, err := c.SignIn(context.Background(), "a@b.c", "nope")
	if !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if store.Message(err) != "Invalid login credentials" {
		t.Fatalf("message mismatch: %q", store.Message(err))
	}
}

func TestSessionReadsExpiryFromToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	f := &fakeUpstream{body: `{"id":"u1","email":"a@b.c"}`}
	c := newTestClient(t, f)

	s, err := c.Session(context.Background(), token)
	if err != nil {
		t.Fatalf("Session error: %v", err)
	}
	if s.User.ID != "u1" || s.ExpiresAt != exp.Unix() || s.ExpiresIn <= 0 {
		t.Fatalf("session mismatch: %+v", s)
	}
	if got := f.last(t).Headers.Get("Authorization"); got != "Bearer "+token {
		t.Fatalf("bearer mismatch: %q", got)
	}
}

func TestSessionRejected(t *testing.T) {
	f := &fakeUpstream{status: http.StatusUnauthorized, body: `{"code":401,"msg":"invalid JWT"}`}
	c := newTestClient(t, f)

	if _, err := c.Session(context.Background(), "bad"); !errors.Is(err, store.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	if _, err := c.Session(context.Background(), " "); !errors.Is(err, store.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for empty token, got %v", err)
	}
}

func TestSignOut(t *testing.T) {
	f := &fakeUpstream{status: http.StatusNoContent}
	c := newTestClient(t, f)

	if err := c.SignOut(context.Background(), "tok"); err != nil {
		t.Fatalf("SignOut error: %v", err)
	}
	if req := f.last(t); req.Method != http.MethodPost || req.Path != "/auth/v1/logout" {
		t.Fatalf("unexpected signout request: %+v", req)
	}
}
