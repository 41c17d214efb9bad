package proxy

import (
	"errors"
	"net/http"
	"strings"

	"github.com/byytelope/deptproxy/internal/httpx"
	"github.com/byytelope/deptproxy/internal/store"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		s.writeClientError(w, r, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		s.writeClientError(w, r, http.StatusBadRequest, "email and password are required", nil)
		return
	}

	sess, err := s.backend.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.logger.WarnContext(r.Context(), "login failed",
			"request_id", httpx.RequestIDFrom(r.Context()),
			"err", err,
		)
		_ = httpx.WriteJSONError(w, http.StatusUnauthorized, store.Message(err), nil)
		return
	}

	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"session": sess})
}

// session resolves the caller's bearer token. A missing or rejected token
// yields a null session rather than an error.
func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	token := httpx.BearerToken(r)
	if token == "" {
		_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"session": nil})
		return
	}

	sess, err := s.backend.Session(r.Context(), token)
	if errors.Is(err, store.ErrInvalidSession) {
		_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"session": nil})
		return
	}
	if err != nil {
		s.writeStoreError(w, r, "get session", err)
		return
	}

	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"session": sess})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if token := httpx.BearerToken(r); token != "" {
		err := s.backend.SignOut(r.Context(), token)
		if err != nil && !errors.Is(err, store.ErrInvalidSession) {
			s.writeStoreError(w, r, "logout", err)
			return
		}
	}

	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"message": "Logged out successfully"})
}
