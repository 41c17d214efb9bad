package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/byytelope/deptproxy/internal/fallback"
	"github.com/byytelope/deptproxy/internal/httpx"
	"github.com/byytelope/deptproxy/internal/store"
)

// eventCandidates are the identifiers tried, in order, for the events table.
var eventCandidates = []string{`"Event"`, "Event", "event"}

// target resolves the store table an operation runs against.
type target interface {
	run(ctx context.Context, op func(ctx context.Context, table string) ([]store.Record, error)) ([]store.Record, error)
}

// fixedTable is a single known-good identifier.
type fixedTable string

func (t fixedTable) run(ctx context.Context, op func(context.Context, string) ([]store.Record, error)) ([]store.Record, error) {
	return op(ctx, string(t))
}

// candidateTables tries each identifier until the store accepts one.
type candidateTables []string

func (t candidateTables) run(ctx context.Context, op func(context.Context, string) ([]store.Record, error)) ([]store.Record, error) {
	rows, _, err := fallback.First(ctx, t, op)
	return rows, err
}

type tableRoute struct {
	slot     string
	singular string
	plural   string
	target   target
	// required fields must be present and non-empty on create and update.
	required []string
	// integerIDs rejects non-integer ids with 400 instead of forwarding them.
	integerIDs bool
}

var (
	professorsTable = &tableRoute{slot: "professors", singular: "professor", plural: "professors", target: fixedTable("Professors")}
	itCoursesTable  = &tableRoute{slot: "itcourses", singular: "course", plural: "courses", target: fixedTable("ITCourses")}
	fileLinkTable   = &tableRoute{slot: "file_link", singular: "file link", plural: "file links", target: fixedTable("File_link")}
	eventsTable     = &tableRoute{
		slot:       "events",
		singular:   "event",
		plural:     "events",
		target:     candidateTables(eventCandidates),
		required:   []string{"Name", "Start_date", "Location"},
		integerIDs: true,
	}
)

func missingFields(rec store.Record, required []string) []string {
	var missing []string
	for _, f := range required {
		v, ok := rec[f]
		if !ok || v == nil {
			missing = append(missing, f)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// decodeRecord reads a JSON object body and checks the table's required fields.
func (s *Server) decodeRecord(w http.ResponseWriter, r *http.Request, t *tableRoute) (store.Record, bool) {
	var rec store.Record
	if err := httpx.DecodeJSON(r, &rec); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeClientError(w, r, http.StatusRequestEntityTooLarge, "request body too large", tooLarge.Limit)
			return nil, false
		}
		s.writeClientError(w, r, http.StatusBadRequest, "invalid JSON body", err.Error())
		return nil, false
	}
	if rec == nil {
		s.writeClientError(w, r, http.StatusBadRequest, "request body must be a JSON object", nil)
		return nil, false
	}
	if missing := missingFields(rec, t.required); len(missing) > 0 {
		s.writeClientError(w, r, http.StatusBadRequest, "missing required fields: "+strings.Join(missing, ", "), missing)
		return nil, false
	}
	return rec, true
}

var errBadID = errors.New("id must be an integer")

// parseIDs splits a comma-separated id segment. With integerIDs every part
// must be an integer; otherwise parts are forwarded as given.
func parseIDs(raw string, integerIDs bool) ([]string, error) {
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if integerIDs {
			n, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", errBadID, p)
			}
			p = strconv.FormatInt(n, 10)
		}
		ids = append(ids, p)
	}
	return ids, nil
}

func (s *Server) listRows(t *tableRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := s.cache.Load(r.Context(), t.slot, func(ctx context.Context) (any, error) {
			return t.target.run(ctx, func(ctx context.Context, table string) ([]store.Record, error) {
				return s.backend.Select(ctx, table, store.Query{OrderBy: "id"})
			})
		})
		if err != nil {
			s.writeStoreError(w, r, "fetch "+t.plural, err)
			return
		}
		_ = httpx.WriteRawJSON(w, http.StatusOK, body)
	}
}

func (s *Server) createRow(t *tableRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := s.decodeRecord(w, r, t)
		if !ok {
			return
		}

		rows, err := t.target.run(r.Context(), func(ctx context.Context, table string) ([]store.Record, error) {
			return s.backend.Insert(ctx, table, []store.Record{rec})
		})
		if err != nil {
			s.writeStoreError(w, r, "create "+t.singular, err)
			return
		}
		s.cache.Invalidate(t.slot)

		var created any = rec
		if len(rows) > 0 {
			created = rows[0]
		}
		_ = httpx.WriteJSON(w, http.StatusCreated, created)
	}
}

func (s *Server) updateRow(t *tableRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.PathValue("id"))
		if t.integerIDs {
			ids, err := parseIDs(id, true)
			if err != nil || len(ids) != 1 {
				s.writeClientError(w, r, http.StatusBadRequest, "invalid "+t.singular+" id", id)
				return
			}
			id = ids[0]
		}

		patch, ok := s.decodeRecord(w, r, t)
		if !ok {
			return
		}

		rows, err := t.target.run(r.Context(), func(ctx context.Context, table string) ([]store.Record, error) {
			return s.backend.Update(ctx, table, patch, store.Eq("id", id))
		})
		if err != nil {
			s.writeStoreError(w, r, "update "+t.singular, err)
			return
		}
		if len(rows) == 0 {
			s.writeClientError(w, r, http.StatusNotFound, "no record updated with id "+id, nil)
			return
		}
		s.cache.Invalidate(t.slot)

		_ = httpx.WriteJSON(w, http.StatusOK, rows[0])
	}
}

// deleteRows handles both /{id} and /{ids}: a segment containing a comma is
// a bulk delete by set membership, anything else deletes a single id.
func (s *Server) deleteRows(t *tableRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.PathValue("ids")
		ids, err := parseIDs(raw, t.integerIDs)
		if err != nil {
			s.writeClientError(w, r, http.StatusBadRequest, "invalid "+t.singular+" id list", err.Error())
			return
		}

		filter := store.Eq("id", ids[0])
		bulk := len(ids) > 1
		if bulk {
			filter = store.In("id", ids...)
		}

		rows, err := t.target.run(r.Context(), func(ctx context.Context, table string) ([]store.Record, error) {
			return s.backend.Delete(ctx, table, filter)
		})
		if err != nil {
			s.writeStoreError(w, r, "delete "+t.plural, err)
			return
		}
		s.cache.Invalidate(t.slot)

		msg := t.singular + " deleted successfully"
		if bulk {
			msg = fmt.Sprintf("%d %s deleted successfully", len(rows), t.plural)
		}
		_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"message": msg,
			"deleted": len(rows),
			"ids":     ids,
		})
	}
}
