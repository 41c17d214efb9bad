// Package admin exposes the read cache over Connect so operators can inspect
// and reset it without going through the public REST routes.
package admin

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/byytelope/deptproxy/pkg/tablecache"
)

const (
	ServiceName = "deptproxy.admin.v1.CacheService"

	ListEntriesProcedure = "/" + ServiceName + "/ListEntries"
	ClearCacheProcedure  = "/" + ServiceName + "/ClearCache"
)

// Service implements the admin procedures over a cache.
type Service struct {
	cache *tablecache.Cache
}

func NewService(cache *tablecache.Cache) *Service {
	return &Service{cache: cache}
}

// NewHandler mounts the service's procedures. The returned path is the
// prefix to register on a mux.
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	list := connect.NewUnaryHandler(ListEntriesProcedure, svc.ListEntries, opts...)
	reset := connect.NewUnaryHandler(ClearCacheProcedure, svc.ClearCache, opts...)

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ListEntriesProcedure:
			list.ServeHTTP(w, r)
		case ClearCacheProcedure:
			reset.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *Service) ListEntries(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	ents := s.cache.Entries()
	out := make([]any, 0, len(ents))
	for _, e := range ents {
		out = append(out, map[string]any{
			"slot":      e.Slot,
			"size":      e.Size,
			"storedAt":  formatTime(e.StoredAt),
			"expiresAt": formatTime(e.ExpiresAt),
			"valid":     e.Valid,
		})
	}

	stats := s.cache.Stats()
	msg, err := structpb.NewStruct(map[string]any{
		"ttlMs":   s.cache.TTL().Milliseconds(),
		"hits":    stats.Hits,
		"misses":  stats.Misses,
		"entries": out,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(msg), nil
}

func (s *Service) ClearCache(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	valid := s.cache.Len()
	s.cache.Clear()

	msg, err := structpb.NewStruct(map[string]any{
		"cleared": valid,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(msg), nil
}
