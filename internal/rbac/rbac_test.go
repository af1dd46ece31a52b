package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChecker(t *testing.T) {
	c := NewChecker(map[string][]string{
		"editor": {"bank:*", "attachment:read"},
		"admin":  {"*"},
	})
	cases := []struct {
		role, perm string
		want       bool
	}{
		{"editor", "bank:convert", true},
		{"editor", "bank:grade", true},
		{"editor", "attachment:write", false},
		{"admin", "attachment:write", true},
		{"nobody", "bank:grade", false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%s, %s) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
	if !c.Any("editor", "attachment:write", "attachment:read") {
		t.Error("Any should match attachment:read")
	}
}

func TestDefaultRoles(t *testing.T) {
	c := NewChecker(nil)
	if c.Has("grader", "bank:convert") {
		t.Error("grader may not convert")
	}
	if !c.Has("grader", "bank:grade") || !c.Has("editor", "attachment:write") {
		t.Error("default permissions missing")
	}
}

func TestGrants(t *testing.T) {
	got := Grants("editor")
	want := []string{"attachment:read", "attachment:write", "bank:convert", "bank:grade"}
	if len(got) != len(want) {
		t.Fatalf("grants = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("grants[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if Grants("nobody") != nil {
		t.Error("unknown role has grants")
	}
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	cases := []struct {
		role string
		h    http.Handler
		want int
	}{
		{"", Require("bank:grade")(ok), http.StatusForbidden},
		{"grader", Require("bank:grade")(ok), http.StatusNoContent},
		{"grader", Require("bank:convert")(ok), http.StatusForbidden},
		{"grader", RequireAny("bank:convert", "bank:grade")(ok), http.StatusNoContent},
		{"admin", Require("anything")(ok), http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithRole(context.Background(), tc.role))
		rec := httptest.NewRecorder()
		tc.h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("role %q: status = %d, want %d", tc.role, rec.Code, tc.want)
		}
	}
}
