package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/byytelope/deptproxy/internal/store"
)

const tokenIssuer = "deptproxy"

type sessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func invalidCredentials() error {
	return &store.Error{
		Op:      "signin",
		Status:  http.StatusBadRequest,
		Code:    "invalid_credentials",
		Message: "Invalid login credentials",
		Err:     store.ErrInvalidCredentials,
	}
}

func invalidSession(op string, cause error) error {
	msg := "invalid JWT"
	if cause != nil {
		msg = "invalid JWT: " + cause.Error()
	}
	return &store.Error{Op: op, Status: http.StatusUnauthorized, Code: "bad_jwt", Message: msg, Err: store.ErrInvalidSession}
}

// CreateUser adds a user with a bcrypt password hash.
func (s *Store) CreateUser(ctx context.Context, email, password string) (store.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return store.User{}, fmt.Errorf("email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	u := store.User{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      "authenticated",
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, string(hash), u.Role, u.CreatedAt.UnixMilli(),
	); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// EnsureUser creates the user unless one with that email already exists.
func (s *Store) EnsureUser(ctx context.Context, email, password string) (store.User, bool, error) {
	u, _, err := s.userByEmail(ctx, email)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, false, err
	}
	u, err = s.CreateUser(ctx, email, password)
	return u, err == nil, err
}

func (s *Store) userByEmail(ctx context.Context, email string) (store.User, string, error) {
	var u store.User
	var hash string
	var created int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, role, created_at FROM users WHERE email = ?`,
		strings.TrimSpace(email),
	).Scan(&u.ID, &u.Email, &hash, &u.Role, &created)
	if err != nil {
		return store.User{}, "", err
	}
	u.CreatedAt = time.UnixMilli(created).UTC()
	return u, hash, nil
}

func (s *Store) userByID(ctx context.Context, id string) (store.User, error) {
	var u store.User
	var created int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, email, role, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.Role, &created)
	if err != nil {
		return store.User{}, err
	}
	u.CreatedAt = time.UnixMilli(created).UTC()
	return u, nil
}

// SignIn checks the password and opens a session signed as an HS256 JWT.
func (s *Store) SignIn(ctx context.Context, email, password string) (*store.Session, error) {
	u, hash, err := s.userByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, s.fail("signin", "", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, invalidCredentials()
	}

	now := s.now().UTC()
	expires := now.Add(s.sessionTTL)
	jti := uuid.NewString()

	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		jti, u.ID, now.UnixMilli(), expires.UnixMilli(),
	); err != nil {
		return nil, s.fail("signin", "", err)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Email: u.Email,
		Role:  u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   u.ID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}).SignedString(s.secret)
	if err != nil {
		return nil, s.fail("signin", "", err)
	}

	return &store.Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.sessionTTL.Seconds()),
		ExpiresAt:   expires.Unix(),
		User:        u,
	}, nil
}

func (s *Store) parseToken(token string, opts ...jwt.ParserOption) (*sessionClaims, error) {
	var claims sessionClaims
	opts = append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	}, opts...)
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, errors.New("token has no session id")
	}
	return &claims, nil
}

// Session verifies the token and that its session has not been closed.
func (s *Store) Session(ctx context.Context, accessToken string) (*store.Session, error) {
	claims, err := s.parseToken(accessToken)
	if err != nil {
		return nil, invalidSession("session", err)
	}

	var userID string
	var expiresAt int64
	err = s.sqlDB.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE id = ?`, claims.ID,
	).Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invalidSession("session", errors.New("session not found"))
	}
	if err != nil {
		return nil, s.fail("session", "", err)
	}

	now := s.now()
	expires := time.UnixMilli(expiresAt)
	if !now.Before(expires) {
		return nil, invalidSession("session", errors.New("session expired"))
	}

	u, err := s.userByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invalidSession("session", errors.New("user not found"))
	}
	if err != nil {
		return nil, s.fail("session", "", err)
	}

	return &store.Session{
		AccessToken: strings.TrimSpace(accessToken),
		TokenType:   "bearer",
		ExpiresIn:   int64(expires.Sub(now).Seconds()),
		ExpiresAt:   expires.Unix(),
		User:        u,
	}, nil
}

// SignOut closes the token's session. Expired tokens can still sign out.
func (s *Store) SignOut(ctx context.Context, accessToken string) error {
	claims, err := s.parseToken(accessToken, jwt.WithoutClaimsValidation())
	if err != nil {
		return invalidSession("signout", err)
	}

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, claims.ID); err != nil {
		return s.fail("signout", "", err)
	}
	return nil
}
