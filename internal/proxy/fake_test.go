package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/byytelope/deptproxy/internal/store"
)

// fakeBackend keeps tables in memory keyed by the exact identifier the proxy
// sends, so each events candidate is a distinct table.
type fakeBackend struct {
	mu sync.Mutex

	tables   map[string][]store.Record
	fail     map[string]error // keyed by "op table"
	calls    []string
	nextID   int64
	rpc      json.RawMessage
	rpcErr   error
	users    map[string]string
	sessions map[string]bool

	lastQuery  store.Query
	lastFilter store.Filter
}

func newFakeBackend(tables ...string) *fakeBackend {
	f := &fakeBackend{
		tables:   map[string][]store.Record{},
		fail:     map[string]error{},
		users:    map[string]string{},
		sessions: map[string]bool{},
	}
	for _, t := range tables {
		f.tables[t] = []store.Record{}
	}
	return f
}

func (f *fakeBackend) seed(table string, rows ...store.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.nextID++
		r = maps.Clone(r)
		r["id"] = f.nextID
		f.tables[table] = append(f.tables[table], r)
	}
}

func (f *fakeBackend) countCalls(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// begin records the call and returns the table's rows or a failure.
func (f *fakeBackend) begin(op, table string) ([]store.Record, error) {
	key := op + " " + table
	f.calls = append(f.calls, key)
	if err := f.fail[key]; err != nil {
		return nil, err
	}
	rows, ok := f.tables[table]
	if !ok {
		return nil, &store.Error{
			Op:      op,
			Table:   table,
			Status:  http.StatusNotFound,
			Code:    "42P01",
			Message: fmt.Sprintf("relation %q does not exist", table),
		}
	}
	return rows, nil
}

func matches(r store.Record, filters []store.Filter) bool {
	for _, flt := range filters {
		v := fmt.Sprint(r[flt.Column])
		if !slices.Contains(flt.Values, v) {
			return false
		}
	}
	return true
}

func cloneRows(rows []store.Record) []store.Record {
	out := make([]store.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, maps.Clone(r))
	}
	return out
}

func (f *fakeBackend) Select(_ context.Context, table string, q store.Query) ([]store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	rows, err := f.begin("select", table)
	if err != nil {
		return nil, err
	}
	var out []store.Record
	for _, r := range rows {
		if matches(r, q.Filters) {
			out = append(out, maps.Clone(r))
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	if out == nil {
		out = []store.Record{}
	}
	return out, nil
}

func (f *fakeBackend) Insert(_ context.Context, table string, rows []store.Record) ([]store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.begin("insert", table); err != nil {
		return nil, err
	}
	var out []store.Record
	for _, r := range rows {
		f.nextID++
		r = maps.Clone(r)
		r["id"] = f.nextID
		f.tables[table] = append(f.tables[table], r)
		out = append(out, maps.Clone(r))
	}
	return out, nil
}

func (f *fakeBackend) Update(_ context.Context, table string, patch store.Record, filters ...store.Filter) ([]store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, err := f.begin("update", table)
	if err != nil {
		return nil, err
	}
	if len(filters) > 0 {
		f.lastFilter = filters[0]
	}
	out := []store.Record{}
	for _, r := range rows {
		if !matches(r, filters) {
			continue
		}
		for k, v := range patch {
			if k != "id" {
				r[k] = v
			}
		}
		out = append(out, maps.Clone(r))
	}
	return out, nil
}

func (f *fakeBackend) Delete(_ context.Context, table string, filters ...store.Filter) ([]store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, err := f.begin("delete", table)
	if err != nil {
		return nil, err
	}
	if len(filters) > 0 {
		f.lastFilter = filters[0]
	}
	for _, flt := range filters {
		for _, v := range flt.Values {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return nil, &store.Error{Op: "delete", Table: table, Status: 400, Code: "22P02", Message: "invalid input syntax for type bigint: " + strconv.Quote(v)}
			}
		}
	}
	var kept, removed []store.Record
	for _, r := range rows {
		if matches(r, filters) {
			removed = append(removed, r)
		} else {
			kept = append(kept, r)
		}
	}
	f.tables[table] = kept
	return cloneRows(removed), nil
}

func (f *fakeBackend) RPC(_ context.Context, fn string, _ any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "rpc "+fn)
	if f.rpcErr != nil {
		return nil, f.rpcErr
	}
	return f.rpc, nil
}

func (f *fakeBackend) SignIn(_ context.Context, email, password string) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pw, ok := f.users[email]; !ok || pw != password {
		return nil, &store.Error{Op: "signin", Status: 400, Message: "Invalid login credentials", Err: store.ErrInvalidCredentials}
	}
	token := "token-" + email
	f.sessions[token] = true
	return &store.Session{AccessToken: token, TokenType: "bearer", ExpiresIn: 3600, User: store.User{ID: "u1", Email: email}}, nil
}

func (f *fakeBackend) Session(_ context.Context, token string) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sessions[token] {
		return nil, &store.Error{Op: "session", Status: 401, Message: "invalid JWT", Err: store.ErrInvalidSession}
	}
	return &store.Session{AccessToken: token, TokenType: "bearer", User: store.User{ID: "u1"}}, nil
}

func (f *fakeBackend) SignOut(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sessions[token] {
		return &store.Error{Op: "signout", Status: 401, Message: "invalid JWT", Err: store.ErrInvalidSession}
	}
	delete(f.sessions, token)
	return nil
}

func (f *fakeBackend) Name() string     { return "fake" }
func (f *fakeBackend) Configured() bool { return true }
func (f *fakeBackend) Close() error     { return nil }

var _ store.Backend = (*fakeBackend)(nil)
