package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/byytelope/deptproxy/internal/store"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ident strips one pair of surrounding double quotes and validates the name.
func ident(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if len(name) >= 2 && name[0] == '"' && name[len(name)-1] == '"' {
		name = name[1 : len(name)-1]
	}
	return name, identRe.MatchString(name)
}

func quote(name string) string {
	return `"` + name + `"`
}

func relationError(op, table string) error {
	return &store.Error{
		Op:      op,
		Table:   table,
		Status:  http.StatusNotFound,
		Code:    "42P01",
		Message: fmt.Sprintf("relation %q does not exist", table),
	}
}

// resolveTable maps a requested table identifier to the document table it
// names. Lookup is case-insensitive, like unquoted SQLite identifiers.
func (s *Store) resolveTable(ctx context.Context, op, table string) (string, error) {
	name, ok := ident(table)
	if !ok {
		return "", relationError(op, table)
	}

	var canonical string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT name FROM doc_tables WHERE name = ?`, name).Scan(&canonical)
	if err == sql.ErrNoRows {
		return "", relationError(op, table)
	}
	if err != nil {
		return "", s.fail(op, table, err)
	}
	return canonical, nil
}

func (s *Store) fail(op, table string, err error) error {
	return &store.Error{Op: op, Table: table, Status: http.StatusInternalServerError, Message: err.Error(), Err: err}
}

// columnExpr returns the SQL expression for a column, reading non-id
// columns out of the JSON document.
func columnExpr(op, table, column string) (string, error) {
	name, ok := ident(column)
	if !ok {
		return "", &store.Error{
			Op:      op,
			Table:   table,
			Status:  http.StatusBadRequest,
			Code:    "PGRST100",
			Message: fmt.Sprintf("invalid column %q", column),
		}
	}
	if name == "id" {
		return "id", nil
	}
	return `json_extract(doc, '$."` + name + `"')`, nil
}

func checkID(op, table, v string) error {
	if _, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err != nil {
		return &store.Error{
			Op:      op,
			Table:   table,
			Status:  http.StatusBadRequest,
			Code:    "22P02",
			Message: fmt.Sprintf("invalid input syntax for type bigint: %q", v),
		}
	}
	return nil
}

func whereClause(op, table string, filters []store.Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	var parts []string
	var args []any
	for _, f := range filters {
		expr, err := columnExpr(op, table, f.Column)
		if err != nil {
			return "", nil, err
		}
		isID := expr == "id"
		if !isID {
			expr = "CAST(" + expr + " AS TEXT)"
		}
		for _, v := range f.Values {
			if isID {
				if err := checkID(op, table, v); err != nil {
					return "", nil, err
				}
			}
			args = append(args, strings.TrimSpace(v))
		}

		switch f.Op {
		case store.OpEq:
			if len(f.Values) != 1 {
				return "", nil, fmt.Errorf("sqlite: eq filter on %q needs one value, got %d", f.Column, len(f.Values))
			}
			parts = append(parts, expr+" = ?")
		case store.OpIn:
			if len(f.Values) == 0 {
				parts = append(parts, "0")
				continue
			}
			parts = append(parts, expr+" IN ("+strings.TrimSuffix(strings.Repeat("?,", len(f.Values)), ",")+")")
		default:
			return "", nil, fmt.Errorf("sqlite: unsupported filter %q", f.Op)
		}
	}

	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func decodeDoc(id int64, doc string) (store.Record, error) {
	rec := store.Record{}
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if rec == nil {
		rec = store.Record{}
	}
	rec["id"] = id
	return rec, nil
}

func (s *Store) queryRows(ctx context.Context, op, table, query string, args ...any) ([]store.Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail(op, table, err)
	}
	defer rows.Close()

	out := []store.Record{}
	for rows.Next() {
		var id int64
		var doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, s.fail(op, table, err)
		}
		rec, err := decodeDoc(id, doc)
		if err != nil {
			return nil, s.fail(op, table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(op, table, err)
	}
	return out, nil
}

func project(rows []store.Record, cols []string) []store.Record {
	if len(cols) == 0 {
		return rows
	}
	out := make([]store.Record, len(rows))
	for i, r := range rows {
		p := make(store.Record, len(cols))
		for _, c := range cols {
			if v, ok := r[c]; ok {
				p[c] = v
			} else {
				p[c] = nil
			}
		}
		out[i] = p
	}
	return out
}

// Select reads rows from a document table.
func (s *Store) Select(ctx context.Context, table string, q store.Query) ([]store.Record, error) {
	name, err := s.resolveTable(ctx, "select", table)
	if err != nil {
		return nil, err
	}

	cols := q.ColumnList()
	for i, c := range cols {
		if _, err := columnExpr("select", table, c); err != nil {
			return nil, err
		}
		cols[i], _ = ident(c)
	}

	where, args, err := whereClause("select", table, q.Filters)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, doc FROM ` + quote(name) + where
	if q.OrderBy != "" {
		expr, err := columnExpr("select", table, q.OrderBy)
		if err != nil {
			return nil, err
		}
		dir := " ASC"
		if q.Descending {
			dir = " DESC"
		}
		query += " ORDER BY " + expr + dir
	}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.queryRows(ctx, "select", table, query, args...)
	if err != nil {
		return nil, err
	}
	return project(rows, cols), nil
}

// splitRecord separates the id from the rest of a record, which becomes the
// stored document.
func splitRecord(op, table string, r store.Record) (*int64, []byte, error) {
	doc := make(store.Record, len(r))
	var id *int64
	for k, v := range r {
		if k != "id" {
			doc[k] = v
			continue
		}
		if v == nil {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(v)), 10, 64)
		if err != nil {
			return nil, nil, checkID(op, table, fmt.Sprint(v))
		}
		id = &n
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, &store.Error{Op: op, Table: table, Status: http.StatusBadRequest, Message: err.Error(), Err: err}
	}
	return id, b, nil
}

// Insert adds rows in one transaction and returns them as stored.
func (s *Store) Insert(ctx context.Context, table string, rows []store.Record) ([]store.Record, error) {
	name, err := s.resolveTable(ctx, "insert", table)
	if err != nil {
		return nil, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.fail("insert", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]store.Record, 0, len(rows))
	for _, r := range rows {
		id, doc, err := splitRecord("insert", table, r)
		if err != nil {
			return nil, err
		}

		var row *sql.Row
		if id != nil {
			row = tx.QueryRowContext(ctx, `INSERT INTO `+quote(name)+` (id, doc) VALUES (?, ?) RETURNING id, doc`, *id, string(doc))
		} else {
			row = tx.QueryRowContext(ctx, `INSERT INTO `+quote(name)+` (doc) VALUES (?) RETURNING id, doc`, string(doc))
		}

		var newID int64
		var stored string
		if err := row.Scan(&newID, &stored); err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return nil, &store.Error{
					Op:      "insert",
					Table:   table,
					Status:  http.StatusConflict,
					Code:    "23505",
					Message: "duplicate key value violates unique constraint",
					Err:     err,
				}
			}
			return nil, s.fail("insert", table, err)
		}
		rec, err := decodeDoc(newID, stored)
		if err != nil {
			return nil, s.fail("insert", table, err)
		}
		out = append(out, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, s.fail("insert", table, err)
	}
	return out, nil
}

// Update merges patch into every matching document (RFC 7396 semantics)
// and returns the updated rows. The id column cannot be changed.
func (s *Store) Update(ctx context.Context, table string, patch store.Record, filters ...store.Filter) ([]store.Record, error) {
	if len(filters) == 0 {
		return nil, &store.Error{Op: "update", Table: table, Status: http.StatusBadRequest, Message: "update requires a filter"}
	}
	name, err := s.resolveTable(ctx, "update", table)
	if err != nil {
		return nil, err
	}

	_, doc, err := splitRecord("update", table, patch)
	if err != nil {
		return nil, err
	}
	where, args, err := whereClause("update", table, filters)
	if err != nil {
		return nil, err
	}

	args = append([]any{string(doc)}, args...)
	return s.queryRows(ctx, "update", table,
		`UPDATE `+quote(name)+` SET doc = json_patch(doc, ?)`+where+` RETURNING id, doc`, args...)
}

// Delete removes every matching row and returns the removed rows.
func (s *Store) Delete(ctx context.Context, table string, filters ...store.Filter) ([]store.Record, error) {
	if len(filters) == 0 {
		return nil, &store.Error{Op: "delete", Table: table, Status: http.StatusBadRequest, Message: "delete requires a filter"}
	}
	name, err := s.resolveTable(ctx, "delete", table)
	if err != nil {
		return nil, err
	}

	where, args, err := whereClause("delete", table, filters)
	if err != nil {
		return nil, err
	}

	return s.queryRows(ctx, "delete", table, `DELETE FROM `+quote(name)+where+` RETURNING id, doc`, args...)
}

// RPC supports get_tables, which lists the document tables.
func (s *Store) RPC(ctx context.Context, fn string, _ any) (json.RawMessage, error) {
	if fn != "get_tables" {
		return nil, &store.Error{
			Op:      "rpc",
			Table:   fn,
			Status:  http.StatusNotFound,
			Code:    "PGRST202",
			Message: fmt.Sprintf("Could not find the function public.%s without parameters in the schema cache", fn),
		}
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name FROM doc_tables ORDER BY name`)
	if err != nil {
		return nil, s.fail("rpc", fn, err)
	}
	defer rows.Close()

	type tableRow struct {
		TableName string `json:"table_name"`
	}
	out := []tableRow{}
	for rows.Next() {
		var t tableRow
		if err := rows.Scan(&t.TableName); err != nil {
			return nil, s.fail("rpc", fn, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("rpc", fn, err)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(out); err != nil {
		return nil, s.fail("rpc", fn, err)
	}
	return json.RawMessage(bytes.TrimSpace(buf.Bytes())), nil
}
