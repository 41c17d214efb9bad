// Package store defines the contracts deptproxy needs from a hosted
// database-as-a-service: table-scoped reads and writes, a remote procedure
// escape hatch and a password-based session API.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Record is one row, keyed by column name.
type Record = map[string]any

// FilterOp is a row filter operator.
type FilterOp string

const (
	OpEq FilterOp = "eq"
	OpIn FilterOp = "in"
)

// Filter restricts the rows an operation touches. Values are forwarded to
// the store verbatim; the store decides whether they make sense for Column.
type Filter struct {
	Column string
	Op     FilterOp
	Values []string
}

// Eq matches rows whose column equals value.
func Eq(column, value string) Filter {
	return Filter{Column: column, Op: OpEq, Values: []string{value}}
}

// In matches rows whose column is one of values.
func In(column string, values ...string) Filter {
	return Filter{Column: column, Op: OpIn, Values: values}
}

// Query describes a read.
type Query struct {
	// Columns is a comma-separated projection. Empty means every column.
	Columns    string
	Filters    []Filter
	OrderBy    string
	Descending bool
	// Limit caps the number of rows. Zero means no limit.
	Limit int
}

// ColumnList splits Columns into trimmed names. It returns nil for "*" or empty.
func (q Query) ColumnList() []string {
	cols := strings.TrimSpace(q.Columns)
	if cols == "" || cols == "*" {
		return nil
	}

	var out []string
	for _, c := range strings.Split(cols, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}

	return out
}

// Store is a table-scoped data API. Table names are passed through as given.
type Store interface {
	Select(ctx context.Context, table string, q Query) ([]Record, error)
	Insert(ctx context.Context, table string, rows []Record) ([]Record, error)
	Update(ctx context.Context, table string, patch Record, filters ...Filter) ([]Record, error)
	Delete(ctx context.Context, table string, filters ...Filter) ([]Record, error)
	RPC(ctx context.Context, fn string, args any) (json.RawMessage, error)
}

// User is the identity attached to a session.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Session is a signed-in user's bearer credentials.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	User         User   `json:"user"`
}

// Authenticator is a password-based session API.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// Session resolves an access token back to its session.
	Session(ctx context.Context, accessToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Backend bundles what a backend offers.
type Backend interface {
	Store
	Authenticator

	// Name identifies the backend in status output.
	Name() string
	// Configured reports whether credentials are present.
	Configured() bool
	Close() error
}
