package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/byytelope/deptproxy/internal/store"
)

const returnRepresentation = "return=representation"

// postgrestError is the body PostgREST sends with a non-2xx status.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func restError(op, table string) func(int, []byte) error {
	return func(status int, body []byte) error {
		e := &store.Error{Op: op, Table: table, Status: status}

		var pe postgrestError
		if err := json.Unmarshal(body, &pe); err == nil && pe.Message != "" {
			e.Code, e.Message, e.Details, e.Hint = pe.Code, pe.Message, pe.Details, pe.Hint
			return e
		}

		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}
}

// quoteValue wraps values containing PostgREST reserved characters in
// double quotes.
func quoteValue(v string) string {
	if !strings.ContainsAny(v, `,()"\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(v) + `"`
}

func applyFilters(q url.Values, filters []store.Filter) error {
	for _, f := range filters {
		switch f.Op {
		case store.OpEq:
			if len(f.Values) != 1 {
				return fmt.Errorf("supabase: eq filter on %q needs one value, got %d", f.Column, len(f.Values))
			}
			q.Add(f.Column, "eq."+f.Values[0])
		case store.OpIn:
			vals := make([]string, len(f.Values))
			for i, v := range f.Values {
				vals[i] = quoteValue(v)
			}
			q.Add(f.Column, "in.("+strings.Join(vals, ",")+")")
		default:
			return fmt.Errorf("supabase: unsupported filter %q", f.Op)
		}
	}
	return nil
}

func tablePath(table string) []string {
	return []string{"rest", "v1", url.PathEscape(table)}
}

func decodeRows(op, table string, b []byte) ([]store.Record, error) {
	rows := []store.Record{}
	if len(bytes.TrimSpace(b)) == 0 {
		return rows, nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, &store.Error{Op: op, Table: table, Message: "unexpected response body", Err: err}
	}
	if rows == nil {
		rows = []store.Record{}
	}
	return rows, nil
}

// Select reads rows from table.
func (c *Client) Select(ctx context.Context, table string, q store.Query) ([]store.Record, error) {
	query := url.Values{}
	cols := strings.TrimSpace(q.Columns)
	if cols == "" {
		cols = "*"
	}
	query.Set("select", cols)
	if err := applyFilters(query, q.Filters); err != nil {
		return nil, err
	}
	if q.OrderBy != "" {
		dir := "asc"
		if q.Descending {
			dir = "desc"
		}
		query.Set("order", q.OrderBy+"."+dir)
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	b, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   tablePath(table),
		query:  query,
	}, restError("select", table))
	if err != nil {
		return nil, err
	}

	return decodeRows("select", table, b)
}

// Insert adds rows to table and returns them as stored.
func (c *Client) Insert(ctx context.Context, table string, rows []store.Record) ([]store.Record, error) {
	b, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   tablePath(table),
		query:  url.Values{"select": {"*"}},
		body:   rows,
		prefer: returnRepresentation,
	}, restError("insert", table))
	if err != nil {
		return nil, err
	}

	return decodeRows("insert", table, b)
}

// Update patches the rows matching filters and returns them. PostgREST
// refuses unfiltered updates, so at least one filter is required.
func (c *Client) Update(ctx context.Context, table string, patch store.Record, filters ...store.Filter) ([]store.Record, error) {
	if len(filters) == 0 {
		return nil, &store.Error{Op: "update", Table: table, Message: "update requires a filter"}
	}
	query := url.Values{"select": {"*"}}
	if err := applyFilters(query, filters); err != nil {
		return nil, err
	}

	b, err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   tablePath(table),
		query:  query,
		body:   patch,
		prefer: returnRepresentation,
	}, restError("update", table))
	if err != nil {
		return nil, err
	}

	return decodeRows("update", table, b)
}

// Delete removes the rows matching filters and returns them.
func (c *Client) Delete(ctx context.Context, table string, filters ...store.Filter) ([]store.Record, error) {
	if len(filters) == 0 {
		return nil, &store.Error{Op: "delete", Table: table, Message: "delete requires a filter"}
	}
	query := url.Values{"select": {"*"}}
	if err := applyFilters(query, filters); err != nil {
		return nil, err
	}

	b, err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   tablePath(table),
		query:  query,
		prefer: returnRepresentation,
	}, restError("delete", table))
	if err != nil {
		return nil, err
	}

	return decodeRows("delete", table, b)
}

// RPC calls a Postgres function exposed by PostgREST.
func (c *Client) RPC(ctx context.Context, fn string, args any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}

	b, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   []string{"rest", "v1", "rpc", url.PathEscape(fn)},
		body:   args,
	}, restError("rpc", fn))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return json.RawMessage("null"), nil
	}

	return json.RawMessage(b), nil
}
