package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/byytelope/deptproxy/internal/fallback"
	"github.com/byytelope/deptproxy/internal/httpx"
	"github.com/byytelope/deptproxy/internal/store"
)

// probedTables are sampled by the database-info route.
var probedTables = append([]string{"Professors", "ITCourses", "File_link"}, eventCandidates...)

const probeConcurrency = 3

type tableProbe struct {
	Table   string   `json:"table"`
	Exists  bool     `json:"exists"`
	Columns []string `json:"columns"`
	Sample  int      `json:"sampleCount"`
	Error   string   `json:"error,omitempty"`
}

func (s *Server) probe(ctx context.Context, table string) tableProbe {
	p := tableProbe{Table: table, Columns: []string{}}
	rows, err := s.backend.Select(ctx, table, store.Query{Limit: 1})
	if err != nil {
		p.Error = store.Message(err)
		return p
	}
	p.Exists = true
	p.Sample = len(rows)
	if len(rows) > 0 {
		for col := range rows[0] {
			p.Columns = append(p.Columns, col)
		}
		slices.Sort(p.Columns)
	}
	return p
}

func (s *Server) debugTables(w http.ResponseWriter, r *http.Request) {
	raw, rpcErr := s.backend.RPC(r.Context(), "get_tables", nil)
	if rpcErr == nil {
		_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"method": "rpc",
			"tables": json.RawMessage(raw),
		})
		return
	}

	rows, directErr := s.backend.Select(r.Context(), "information_schema.tables", store.Query{
		Columns: "table_name",
		Filters: []store.Filter{store.Eq("table_schema", "public")},
	})
	if directErr != nil {
		s.logger.ErrorContext(r.Context(), "list tables",
			"request_id", httpx.RequestIDFrom(r.Context()),
			"rpc_err", rpcErr,
			"err", directErr,
		)
		_ = httpx.WriteJSONError(w, http.StatusInternalServerError, "failed to list tables", map[string]string{
			"rpc":    store.Message(rpcErr),
			"direct": store.Message(directErr),
		})
		return
	}

	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"method":   "information_schema",
		"tables":   rows,
		"rpcError": store.Message(rpcErr),
	})
}

func (s *Server) debugConnection(w http.ResponseWriter, r *http.Request) {
	p := s.probe(r.Context(), "Professors")
	body := map[string]any{
		"backend":    s.backend.Name(),
		"configured": s.backend.Configured(),
		"connected":  p.Exists,
		"table":      p.Table,
		"sample":     p.Sample,
	}
	if !p.Exists {
		body["error"] = p.Error
		_ = httpx.WriteJSON(w, http.StatusInternalServerError, body)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, body)
}

// debugEventStructure probes every events candidate, not just the first
// one that answers.
func (s *Server) debugEventStructure(w http.ResponseWriter, r *http.Request) {
	probes := make([]tableProbe, 0, len(eventCandidates))
	working := ""
	for _, c := range eventCandidates {
		p := s.probe(r.Context(), c)
		if p.Exists && working == "" {
			working = c
		}
		probes = append(probes, p)
	}

	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"variants": probes,
		"working":  working,
	})
}

func (s *Server) debugDatabaseInfo(w http.ResponseWriter, r *http.Request) {
	probes := make([]tableProbe, len(probedTables))

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(probeConcurrency)
	for i, table := range probedTables {
		g.Go(func() error {
			probes[i] = s.probe(ctx, table)
			return nil
		})
	}
	_ = g.Wait()

	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"backend": s.backend.Name(),
		"tables":  probes,
	})
}

// directEvents reads events through the candidate chain without the cache.
func (s *Server) directEvents(w http.ResponseWriter, r *http.Request) {
	rows, table, err := fallback.First(r.Context(), eventCandidates, func(ctx context.Context, table string) ([]store.Record, error) {
		return s.backend.Select(ctx, table, store.Query{OrderBy: "id"})
	})
	if err != nil {
		s.writeStoreError(w, r, "direct events read", err)
		return
	}

	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"table": table,
		"count": len(rows),
		"data":  rows,
	})
}
