package proxy

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/byytelope/deptproxy/internal/httpx"
	"github.com/byytelope/deptproxy/internal/store"
)

const defaultQueryLimit = 100

// parseQuery builds a read from the passthrough query parameters.
func parseQuery(r *http.Request) store.Query {
	v := r.URL.Query()

	q := store.Query{
		Columns: "*",
		OrderBy: "id",
		Limit:   defaultQueryLimit,
	}
	if sel := strings.TrimSpace(v.Get("select")); sel != "" {
		q.Columns = sel
	}
	if n, err := strconv.Atoi(strings.TrimSpace(v.Get("limit"))); err == nil && n > 0 {
		q.Limit = n
	}
	if col := strings.TrimSpace(v.Get("order_by")); col != "" {
		q.OrderBy = col
	}
	q.Descending = strings.EqualFold(strings.TrimSpace(v.Get("order_direction")), "desc")

	return q
}

// query forwards an arbitrary table read. No table whitelist is applied and
// results are never cached.
func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	rows, err := s.backend.Select(r.Context(), table, parseQuery(r))
	if err != nil {
		s.writeStoreError(w, r, "query "+table, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, rows)
}
