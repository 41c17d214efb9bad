// Package proxy serves the browser-facing REST API. Reads of the four known
// tables go through a per-table TTL cache; writes go straight to the store
// and reset the table's cache slot once the store confirms them.
package proxy

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/byytelope/deptproxy/internal/fallback"
	"github.com/byytelope/deptproxy/internal/httpx"
	"github.com/byytelope/deptproxy/internal/store"
	"github.com/byytelope/deptproxy/pkg/tablecache"
)

// Server holds the router's collaborators. Build it with New.
type Server struct {
	backend store.Backend
	cache   *tablecache.Cache
	logger  *slog.Logger
	tables  []*tableRoute
}

// New returns a server over backend. The cache must have been built with Slots.
func New(backend store.Backend, cache *tablecache.Cache, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		backend: backend,
		cache:   cache,
		logger:  logger,
		tables:  []*tableRoute{professorsTable, itCoursesTable, fileLinkTable, eventsTable},
	}
}

// Slots lists the cache slots the server reads and resets.
func Slots() []string {
	return []string{professorsTable.slot, itCoursesTable.slot, fileLinkTable.slot, eventsTable.slot}
}

// Routes returns the bare route table.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.status)

	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.session)
	mux.HandleFunc("POST /api/auth/logout", s.logout)

	for _, t := range s.tables {
		base := "/api/" + t.slot
		mux.HandleFunc("GET "+base, s.listRows(t))
		mux.HandleFunc("POST "+base, s.createRow(t))
		mux.HandleFunc("PUT "+base+"/{id}", s.updateRow(t))
		mux.HandleFunc("DELETE "+base+"/{ids}", s.deleteRows(t))
	}

	mux.HandleFunc("GET /api/query/{table}", s.query)
	mux.HandleFunc("POST /api/clear-cache", s.clearCache)

	mux.HandleFunc("GET /api/debug/tables", s.debugTables)
	mux.HandleFunc("GET /api/debug/supabase-connection", s.debugConnection)
	mux.HandleFunc("GET /api/debug/event-structure", s.debugEventStructure)
	mux.HandleFunc("GET /api/debug/database-info", s.debugDatabaseInfo)
	mux.HandleFunc("GET /api/direct/events", s.directEvents)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_ = httpx.WriteJSONError(w, http.StatusNotFound, "route not found", r.Method+" "+r.URL.Path)
	})

	return mux
}

// Handler returns the routes behind request-id, access-log and
// panic-recovery middleware.
func (s *Server) Handler() http.Handler {
	return httpx.Chain(s.Routes(),
		httpx.RequestID(),
		httpx.AccessLog(s.logger),
		httpx.RecoverPanic(s.logger),
	)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"message":         "deptproxy is running",
		"backend":         s.backend.Name(),
		"storeConfigured": s.backend.Configured(),
	})
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	s.cache.Clear()
	s.logger.InfoContext(r.Context(), "cache cleared", "request_id", httpx.RequestIDFrom(r.Context()))
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Cache cleared",
		"slots":   Slots(),
	})
}

// variantFailure is one entry in the details of an exhausted fallback.
type variantFailure struct {
	Table string `json:"table"`
	Error string `json:"error"`
}

// writeStoreError maps a store or fallback failure to a 500 and logs it.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, action string, err error) {
	s.logger.ErrorContext(r.Context(), action,
		"route", r.Pattern,
		"request_id", httpx.RequestIDFrom(r.Context()),
		"err", err,
	)

	var ex *fallback.ExhaustedError
	if errors.As(err, &ex) {
		details := make([]variantFailure, 0, len(ex.Attempts))
		for _, a := range ex.Attempts {
			details = append(details, variantFailure{Table: a.Candidate, Error: store.Message(a.Err)})
		}
		_ = httpx.WriteJSONError(w, http.StatusInternalServerError, "all event table variants failed", details)
		return
	}

	_ = httpx.WriteJSONError(w, http.StatusInternalServerError, store.Message(err), store.Details(err))
}

// writeClientError logs at warn level and writes a 4xx.
func (s *Server) writeClientError(w http.ResponseWriter, r *http.Request, status int, msg string, details any) {
	s.logger.WarnContext(r.Context(), msg,
		"route", r.Pattern,
		"status", status,
		"request_id", httpx.RequestIDFrom(r.Context()),
	)
	_ = httpx.WriteJSONError(w, status, msg, details)
}
