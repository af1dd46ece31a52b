package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type fakeAccounts map[string]Account

func (f fakeAccounts) Lookup(_ context.Context, username string) (Account, error) {
	acc, ok := f[username]
	if !ok {
		return Account{}, ErrNoAccount
	}
	return acc, nil
}

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("k1", time.Hour)
	tok, err := a.IssueJWT("alice", "editor")
	if err != nil {
		t.Fatal(err)
	}
	c, err := a.Parse(tok)
	if err != nil {
		t.Fatal(err)
	}
	if c.Sub != "alice" || c.Role != "editor" || c.Issuer != "mindengage-qbank" {
		t.Errorf("claims = %+v", c)
	}
	if _, err := NewAuthService("k2", time.Hour).Parse(tok); err == nil {
		t.Error("token verified with the wrong key")
	}
	expired := NewAuthService("k1", time.Hour)
	expired.ttl = -time.Minute
	old, _ := expired.IssueJWT("alice", "editor")
	if _, err := a.Parse(old); err == nil {
		t.Error("expired token accepted")
	}
}

func TestLoginHandler(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	accounts := fakeAccounts{"bob": {Username: "bob", PassHash: string(hash), Role: "grader"}}
	a := NewAuthService("k", time.Hour)
	h := LoginHandler(a, accounts)

	cases := []struct {
		body string
		want int
	}{
		{`{"username":"bob","password":"s3cret"}`, http.StatusOK},
		{`{"username":"bob","password":"nope"}`, http.StatusUnauthorized},
		{`{"username":"eve","password":"s3cret"}`, http.StatusUnauthorized},
		{`{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tc.body)))
		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.body, rec.Code, tc.want)
			continue
		}
		if rec.Code != http.StatusOK {
			continue
		}
		var out struct {
			Token       string   `json:"access_token"`
			Role        string   `json:"role"`
			Permissions []string `json:"permissions"`
		}
		_ = json.NewDecoder(rec.Body).Decode(&out)
		c, err := a.Parse(out.Token)
		if err != nil || c.Sub != "bob" || out.Role != "grader" {
			t.Errorf("login result = %+v, claims err = %v", out, err)
		}
		if len(out.Permissions) != 2 || out.Permissions[0] != "attachment:read" {
			t.Errorf("permissions = %v", out.Permissions)
		}
	}
}

func TestMiddlewareChain(t *testing.T) {
	a := NewAuthService("k", time.Hour)
	accounts := fakeAccounts{"carol": {Username: "carol", Role: "editor"}}
	var gotSub, gotRole string
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub, gotRole = Principal(r.Context())
	})
	strict := JWTMiddleware(a)(AttachRoleFromDB(accounts, false)(final))
	lenient := JWTMiddleware(a)(AttachRoleFromDB(accounts, true)(final))

	do := func(h http.Handler, token string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do(strict, ""); code != http.StatusUnauthorized {
		t.Errorf("no token: %d", code)
	}
	if code := do(strict, "garbage"); code != http.StatusUnauthorized {
		t.Errorf("bad token: %d", code)
	}

	// the account's role wins over the token claim
	tok, _ := a.IssueJWT("carol", "admin")
	if code := do(strict, tok); code != http.StatusOK || gotSub != "carol" || gotRole != "editor" {
		t.Errorf("carol: %d sub=%q role=%q", code, gotSub, gotRole)
	}

	ghost, _ := a.IssueJWT("ghost", "grader")
	if code := do(strict, ghost); code != http.StatusForbidden {
		t.Errorf("unknown account, strict: %d", code)
	}
	if code := do(lenient, ghost); code != http.StatusOK || gotRole != "grader" {
		t.Errorf("unknown account, claim fallback: %d role=%q", code, gotRole)
	}
}
