package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestRouter(iss *Issuer) (*gin.Engine, *int) {
	gin.SetMode(gin.TestMode)
	reached := 0
	r := gin.New()
	g := r.Group("/", Authenticate(iss, nil))
	ok := func(c *gin.Context) {
		reached++
		c.Status(http.StatusOK)
	}
	g.POST("/tickets", RequireRole(RoleEmployee, "Finance Managers cannot send tickets"), ok)
	g.GET("/pending", RequireRole(RoleManager, MsgForbidden), ok)
	g.GET("/history/:username", RequireSelf("username"), ok)
	return r, &reached
}

func do(r http.Handler, method, path, token string) int {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestAuthenticate_MissingAndInvalidTokenAbort(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	r, reached := newTestRouter(iss)

	if code := do(r, http.MethodGet, "/pending", ""); code != http.StatusForbidden {
		t.Fatalf("expected 403 without token, got %d", code)
	}
	if code := do(r, http.MethodGet, "/pending", "garbage"); code != http.StatusForbidden {
		t.Fatalf("expected 403 with invalid token, got %d", code)
	}
	if *reached != 0 {
		t.Fatalf("handler must not run after gate rejection")
	}
}

func TestRoleAndSelfChecks(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	r, reached := newTestRouter(iss)

	alice, _ := iss.Issue(Identity{Username: "alice", Role: RoleEmployee})
	bob, _ := iss.Issue(Identity{Username: "bob", Role: RoleManager})

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"employee creates", http.MethodPost, "/tickets", alice, http.StatusOK},
		{"manager creates", http.MethodPost, "/tickets", bob, http.StatusForbidden},
		{"manager lists pending", http.MethodGet, "/pending", bob, http.StatusOK},
		{"employee lists pending", http.MethodGet, "/pending", alice, http.StatusForbidden},
		{"own history", http.MethodGet, "/history/alice", alice, http.StatusOK},
		{"foreign history", http.MethodGet, "/history/carol", alice, http.StatusForbidden},
		{"manager foreign history", http.MethodGet, "/history/alice", bob, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := do(r, tc.method, tc.path, tc.token); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
	if *reached != 3 {
		t.Fatalf("expected 3 handler invocations, got %d", *reached)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer abc":  "abc",
		"Basic abc":   "",
		"Bearer":      "",
		"":            "",
		"  Bearer x ": "x",
	}
	for in, want := range cases {
		if got := bearerToken(in); got != want {
			t.Fatalf("bearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGateRecordsErrForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := NewIssuer("secret", time.Hour)
	alice, _ := iss.Issue(Identity{Username: "alice", Role: RoleEmployee})

	var recorded []error
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		for _, e := range c.Errors {
			recorded = append(recorded, e.Err)
		}
	})
	g := r.Group("/", Authenticate(iss, nil))
	g.GET("/pending", RequireRole(RoleManager, MsgForbidden), func(c *gin.Context) {})
	g.GET("/history/:username", RequireSelf("username"), func(c *gin.Context) {})

	for _, path := range []string{"/pending", "/history/carol"} {
		recorded = nil
		if code := do(r, http.MethodGet, path, alice); code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", path, code)
		}
		if len(recorded) != 1 || !errors.Is(recorded[0], ErrForbidden) {
			t.Fatalf("%s: expected ErrForbidden on the context, got %v", path, recorded)
		}
	}
}
