package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mind-engage/mindengage-qbank/internal/rbac"
)

// Account is a login that may call the API.
type Account struct {
	Username string
	PassHash string // bcrypt
	Role     string
}

// Accounts looks up logins by username.
type Accounts interface {
	Lookup(ctx context.Context, username string) (Account, error)
}

var ErrNoAccount = errors.New("no such account")

// SQLAccounts keeps accounts in the accounts table.
type SQLAccounts struct{ db *sql.DB }

func NewSQLAccounts(db *sql.DB) *SQLAccounts { return &SQLAccounts{db: db} }

func (s *SQLAccounts) Lookup(ctx context.Context, username string) (Account, error) {
	acc := Account{Username: username}
	err := s.db.QueryRowContext(ctx,
		`SELECT pass_hash, role FROM accounts WHERE username=$1`, username,
	).Scan(&acc.PassHash, &acc.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNoAccount
	}
	if err != nil {
		return Account{}, fmt.Errorf("lookup account: %w", err)
	}
	return acc, nil
}

// Upsert creates or replaces an account.
func (s *SQLAccounts) Upsert(ctx context.Context, acc Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (username, pass_hash, role, created_at) VALUES ($1,$2,$3,$4)
		ON CONFLICT (username) DO UPDATE SET pass_hash=excluded.pass_hash, role=excluded.role`,
		acc.Username, acc.PassHash, acc.Role, time.Now().Unix())
	return err
}

// AttachRoleFromDB replaces the token's role claim with the account's
// current role. allowClaimFallback=true in dev; false in prod.
func AttachRoleFromDB(accounts Accounts, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)
			claimRole := rbac.RoleFromContext(ctx) // set by JWTMiddleware

			acc, err := accounts.Lookup(ctx, sub)
			switch {
			case err == nil && acc.Role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, acc.Role)))
			case allowClaimFallback && claimRole != "":
				next.ServeHTTP(w, r)
			default:
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
