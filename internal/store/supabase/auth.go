package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/byytelope/deptproxy/internal/store"
)

// gotrueError covers both the legacy OAuth-style and the current GoTrue
// error bodies.
type gotrueError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (g gotrueError) text() string {
	for _, s := range []string{g.ErrorDescription, g.Msg, g.Message, g.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func authError(op string, sentinel error, sentinelStatuses ...int) func(int, []byte) error {
	return func(status int, body []byte) error {
		e := &store.Error{Op: op, Status: status}

		var ge gotrueError
		if err := json.Unmarshal(body, &ge); err == nil {
			e.Code = ge.ErrorCode
			if e.Code == "" {
				e.Code = ge.Error
			}
			e.Message = ge.text()
		}
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		for _, s := range sentinelStatuses {
			if status == s {
				e.Err = sentinel
				break
			}
		}
		return e
	}
}

type gotrueUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (u gotrueUser) user() store.User {
	return store.User{ID: u.ID, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

type gotrueSession struct {
	AccessToken  string     `json:"access_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int64      `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	RefreshToken string     `json:"refresh_token"`
	User         gotrueUser `json:"user"`
}

// SignIn exchanges an email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*store.Session, error) {
	b, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   []string{"auth", "v1", "token"},
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	}, authError("signin", store.ErrInvalidCredentials, http.StatusBadRequest, http.StatusUnauthorized))
	if err != nil {
		return nil, err
	}

	var gs gotrueSession
	if err := json.Unmarshal(b, &gs); err != nil {
		return nil, &store.Error{Op: "signin", Message: "unexpected response body", Err: err}
	}
	if gs.AccessToken == "" {
		return nil, &store.Error{Op: "signin", Message: "no access token in response"}
	}

	return &store.Session{
		AccessToken:  gs.AccessToken,
		TokenType:    gs.TokenType,
		ExpiresIn:    gs.ExpiresIn,
		ExpiresAt:    gs.ExpiresAt,
		RefreshToken: gs.RefreshToken,
		User:         gs.User.user(),
	}, nil
}

// Session resolves accessToken through GoTrue's user endpoint. Expiry is
// read from the token's own claims without verifying its signature; GoTrue
// has already accepted it.
func (c *Client) Session(ctx context.Context, accessToken string) (*store.Session, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, store.ErrInvalidSession
	}

	b, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   []string{"auth", "v1", "user"},
		bearer: accessToken,
	}, authError("session", store.ErrInvalidSession, http.StatusUnauthorized, http.StatusForbidden))
	if err != nil {
		return nil, err
	}

	var u gotrueUser
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, &store.Error{Op: "session", Message: "unexpected response body", Err: err}
	}

	s := &store.Session{AccessToken: accessToken, TokenType: "bearer", User: u.user()}
	if exp, ok := tokenExpiry(accessToken); ok {
		s.ExpiresAt = exp.Unix()
		s.ExpiresIn = max(int64(time.Until(exp).Seconds()), 0)
	}

	return s, nil
}

// SignOut revokes accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return store.ErrInvalidSession
	}

	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   []string{"auth", "v1", "logout"},
		bearer: accessToken,
	}, authError("signout", store.ErrInvalidSession, http.StatusUnauthorized, http.StatusForbidden))
	return err
}

func tokenExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

var _ store.Backend = (*Client)(nil)

